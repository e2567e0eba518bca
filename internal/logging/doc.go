// Package logging provides a simple leveled logging interface for modelcat.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is taken from the LOG_LEVEL (or DEBUG) environment variable
// and may be overridden from configuration with Configure or SetLevel.
// Configure can also mirror output into a size-rotated log file.
package logging
