// Package logger holds the process-wide leveled loggers used across the
// service. Anything user-controlled (filenames, declared MIME types) must go
// through SanitizeForLog before being interpolated into a message.
package logger

import (
	"log"
	"os"
)

var (
	Info  *log.Logger
	Error *log.Logger
	Debug *log.Logger
	Warn  *log.Logger
)

func init() {
	// UTC timestamps so job lifecycle logs line up with the UTC times stored
	// on job records.
	logFlags := log.Ldate | log.Ltime | log.LUTC | log.Lshortfile

	Info = log.New(os.Stdout, "INFO: ", logFlags)
	Error = log.New(os.Stdout, "ERROR: ", logFlags)
	Debug = log.New(os.Stdout, "DEBUG: ", logFlags)
	Warn = log.New(os.Stdout, "WARN: ", logFlags)
}
