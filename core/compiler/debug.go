package compiler

import (
	"os"

	"github.com/ethereum/go-ethereum/log"
)

// DebugLogsEnabled toggles the pipeline's verbose logs. It starts on when
// MIDTIER_DEBUG is set to 1 or true.
var DebugLogsEnabled = false

func init() {
	if v := os.Getenv("MIDTIER_DEBUG"); v == "1" || v == "true" {
		DebugLogsEnabled = true
	}
}

// EnableDebugLogs toggles the pipeline's verbose logs.
func EnableDebugLogs(on bool) { DebugLogsEnabled = on }

// DebugInfo emits info only if debug logging is enabled.
func DebugInfo(msg string, ctx ...interface{}) {
	if DebugLogsEnabled {
		log.Info(msg, ctx...)
	}
}

// DebugWarn emits a warning only if debug logging is enabled.
func DebugWarn(msg string, ctx ...interface{}) {
	if DebugLogsEnabled {
		log.Warn(msg, ctx...)
	}
}

// DebugError emits an error only if debug logging is enabled.
func DebugError(msg string, ctx ...interface{}) {
	if DebugLogsEnabled {
		log.Error(msg, ctx...)
	}
}

// BestEffort, when enabled, lets Compile return the partial graph of a
// function with unsupported bytecodes instead of failing.
var BestEffort = false

// SetBestEffort sets best-effort mode.
func SetBestEffort(enable bool) { BestEffort = enable }
