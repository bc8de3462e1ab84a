// Package logx provides the structured logging used across taskflow.
//
// It wraps zerolog behind a small value-type Logger with a functional Field
// API. The zero Logger is a safe no-op, which lets library types take a
// Logger without nil checks. A Service owns the configured sinks (console
// and/or file) and supports swapping them at runtime via Apply; Loggers
// handed out by a Service stay live across such swaps.
package logx
