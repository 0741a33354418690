// Package logx is the structured logger used across the harness.
//
// It wraps zerolog in a small value type (logx.Logger) that keeps:
//   - Console output readable (short timestamp + short caller)
//   - Extra sinks JSON-structured, one object per line
//   - A Capture sink that decodes those lines so tests can assert on them
package logx
