// Package logging sets up the process-wide structured logger: terminal-colored text when stdout
// is a TTY, JSON otherwise, at a configurable level.
package logging

import (
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
)

// Level names accepted by --log.level / LOG_LEVEL, matching log.LvlFromString's vocabulary.
const (
	LevelTrace = "trace"
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelCrit  = "crit"
)

// SetupDefaults configures the root logger and returns it. An unrecognized level falls back to
// info rather than failing process start over a config typo.
func SetupDefaults(level string) log.Logger {
	lvl, err := log.LvlFromString(level)
	if err != nil {
		lvl = log.LvlInfo
	}

	var handler log.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		handler = log.StreamHandler(os.Stdout, log.TerminalFormat(true))
	} else {
		handler = log.StreamHandler(os.Stdout, log.JSONFormat())
	}

	logger := log.New()
	logger.SetHandler(log.LvlFilterHandler(lvl, handler))
	log.Root().SetHandler(logger.GetHandler())
	return logger
}
