// Package logging is the structured logger of ControlNet Core, a thin
// layer over log/slog.
//
// Every entry carries service and version. Timestamps are UTC and levels
// are lower case. The level can be raised or lowered while the process runs
// with SetLevel; derived component loggers follow the change.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Safety trips and emergency stops are logged at error level with
// severity=critical. Never log credentials.
package logging
