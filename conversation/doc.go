// Package conversation orchestrates multi-agent turn-taking: it owns the
// shared chat history, picks the next speaker, decides when to stop, and
// reduces a finished conversation to a single result.
//
// The turn loop is single-threaded and cooperative: exactly one agent
// speaks at a time, and every suspension point (model requests, tool
// execution, stream sends) observes context cancellation. A reply is
// recorded atomically: either the whole message lands in the history or
// none of it does.
package conversation
