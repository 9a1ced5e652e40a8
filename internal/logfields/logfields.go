package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyCycleID    = "cycle_id"
	KeyTrigger    = "trigger"
	KeySubmodule  = "submodule"
	KeyBranch     = "branch"
	KeyPath       = "path"
	KeyCommand    = "command"
	KeyDir        = "dir"
	KeyStep       = "step"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func CycleID(id string) slog.Attr     { return slog.String(KeyCycleID, id) }
func Trigger(t string) slog.Attr      { return slog.String(KeyTrigger, t) }
func Submodule(name string) slog.Attr { return slog.String(KeySubmodule, name) }
func Branch(b string) slog.Attr       { return slog.String(KeyBranch, b) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Command(c string) slog.Attr      { return slog.String(KeyCommand, c) }
func Dir(d string) slog.Attr          { return slog.String(KeyDir, d) }
func Step(s string) slog.Attr         { return slog.String(KeyStep, s) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
