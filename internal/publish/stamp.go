package publish

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StampFile is the publish-stamp location inside the public output root. The
// stamp is a guard for the loop-prevention window, never an audit log; every
// publish overwrites it.
const StampFile = ".publish-stamp"

// WriteStamp records the publish time in dir.
func WriteStamp(dir string, t time.Time) error {
	return os.WriteFile(filepath.Join(dir, StampFile), []byte(t.UTC().Format(time.RFC3339Nano)+"\n"), 0o644)
}

// ReadStamp returns the recorded publish time. ok is false when no stamp
// exists or it cannot be parsed.
func ReadStamp(dir string) (time.Time, bool) {
	data, err := os.ReadFile(filepath.Join(dir, StampFile))
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
