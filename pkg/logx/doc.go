// Package logx configures hivemind's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured, one event per line
//   - Hot-path messages throttled (see Throttle)
package logx
