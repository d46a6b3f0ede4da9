// Package logger wraps zap for the repoupdate tool.
//
// A global sugared logger with a console encoder is created at start-up and
// can be scoped per operation through the context helpers (ToContext,
// FromContext, WithName, WithKV). Every service call takes a context and logs
// through the logger stored in it.
package logger
