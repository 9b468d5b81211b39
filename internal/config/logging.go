package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace is a custom slog level below [slog.LevelDebug] for
// wire-level forensics (full backend request/response payloads). The
// numeric value -8 follows the convention used by Go projects that
// extend slog with a Trace level.
const LevelTrace = slog.Level(-8)

var logLevels = map[string]slog.Level{
	"":        slog.LevelInfo,
	"info":    slog.LevelInfo,
	"trace":   LevelTrace,
	"debug":   slog.LevelDebug,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLogLevel converts a case-insensitive level name to an
// [slog.Level]. The empty string means info; "trace" selects
// [LevelTrace]. Unrecognized names return an error and info.
func ParseLogLevel(s string) (slog.Level, error) {
	if lvl, ok := logLevels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lvl, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
}

// ReplaceLogLevelNames is an [slog.HandlerOptions.ReplaceAttr] function
// that renders [LevelTrace] as "TRACE" in log output. Without it slog
// renders the custom level as "DEBUG-4".
func ReplaceLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}
