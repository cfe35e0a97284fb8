// Package logging provides structured logging for the hbootdbg bridge.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used throughout the bridge. It provides both general logging functions
// and specialized functions for the two protocols the bridge speaks.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (hex dumps, RSP packets, device commands)
//   - Info: Normal operations (client connected, device attached, stops)
//   - Warn: Non-fatal issues (corrupted packets, device errors, reconnects)
//   - Error: Fatal issues (startup failures, session aborts)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Debugger connected",
//	    zap.String("remote_addr", "127.0.0.1:51234"),
//	)
//
// # Specialized Logging
//
// RSP traffic:
//
//	logging.LogPacket("received", fields)
//	logging.LogPacket("sent", fields)
//
// Device traffic:
//
//	logging.LogDeviceCommand("request", "read", "SUCCESS", 10)
//
// Raw bytes (hex + ascii):
//
//	logging.LogRawBytes("device reply", data)
//
// # Configuration
//
// Initialize logging at startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// When no level is given, HBOOTDBG_LOG_LEVEL is consulted. When that is unset
// too, logging is silent.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap logger
// handles synchronization automatically.
package logging
