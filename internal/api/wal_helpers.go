package api

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/relayq/relayq/internal/wal"
)

var errNoSuchWALRecord = errors.New("no contingency record with that timestamp")

// matchesTimestamp reports whether a WAL file path's base name (sans any
// collision-counter suffix and extension) equals ts.
func matchesTimestamp(path, ts string) bool {
	base := strings.TrimSuffix(filepath.Base(path), ".json")
	if base == ts {
		return true
	}
	if idx := strings.IndexByte(base, '-'); idx >= 0 {
		return base[:idx] == ts
	}
	return false
}

func enrichAttemptedOn(body []byte) ([]byte, error) {
	return wal.WithAttemptedOn(body, time.Now())
}
