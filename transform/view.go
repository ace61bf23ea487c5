package transform

import "github.com/microsoft/autogen-sub008/types"

// AgentView derives an agent's private view of a shared history as a
// pure function: messages the agent authored become assistant-role,
// every other participant's message becomes user-role, and system, tool
// call and tool result messages pass through unchanged.
//
// Views are computed on demand, never stored, so they cannot drift out
// of sync with the canonical log after compression rewrites it.
func AgentView(history []types.Message, agentName string) []types.Message {
	out := make([]types.Message, len(history))
	for i, msg := range history {
		switch msg.Role {
		case types.RoleSystem, types.RoleToolCall, types.RoleToolResult:
			out[i] = msg
		case types.RoleUser, types.RoleAssistant:
			remapped := msg
			if msg.Name == agentName {
				remapped.Role = types.RoleAssistant
			} else {
				remapped.Role = types.RoleUser
			}
			out[i] = remapped
		default:
			out[i] = msg
		}
	}
	return out
}
