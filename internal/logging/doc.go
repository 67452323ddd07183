// Package logging provides structured, context-aware logging for orchestrd.
//
// It wraps zap with a Logger whose methods accept a context.Context and
// automatically attach correlation fields carried in the context: the task
// identifier, the provider name, and the agent identifier. Components take
// a *logging.Logger and derive named children with Named().
package logging
