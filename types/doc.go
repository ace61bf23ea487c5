// Package types provides the core conversation types shared across the
// framework: the message variant set, usage accounting, termination
// verdicts, and the agent contract.
//
// This package has ZERO dependencies on other packages in this module to
// avoid circular imports. All other packages import types from here.
package types
