// Package agent provides the model-backed conversational agents that
// plug into a conversation.Orchestrator: an Assistant that drives an
// llm.ModelClient through a message transform pipeline, and a tool
// registry that executes model-requested tool calls.
package agent
