package logger

import (
	"log"
	"os"
)

// New returns a stderr logger for code that runs before slog is configured.
func New(component string) *log.Logger {
	return log.New(os.Stderr, component+": ", log.LstdFlags|log.Lmsgprefix)
}
