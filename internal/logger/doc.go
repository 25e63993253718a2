// Package logger wraps zap for the nearby-handshake binaries:
//   - a global sugared logger with a console encoder and an atomic level,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing for the `log_level` setting and `--log-level` flag,
//   - leveled shortcuts (Infof, WarnKV, DebugKV, ...).
//
// Components receive a context and log through it, so the coordinator, the
// peer link and the ranging simulator each carry their own logger name.
package logger
