// Package logger wraps zap for packwiz-deploy:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing for the --log-level flag,
//   - convenience functions (Infof, WarnKV, etc.).
//
// Services receive a context and pull the logger out of it, so a run ID or a
// step name attached once shows up on every line below it.
package logger
