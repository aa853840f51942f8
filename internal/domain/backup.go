package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BackupTimeLayout is the layout of the creation timestamp embedded in every
// backup name. Lexical order of names within one target equals temporal order.
const BackupTimeLayout = "20060102_1504"

// The greedy prefix binds to the last timestamp segment of the base name, so
// an env name that itself looks like a timestamp is skipped.
var backupTimePattern = regexp.MustCompile(`^.*_(\d{8})_(\d{4})_`)

// NewBackupName returns "{env}_{YYYYMMDD}_{HHMM}_{suffix}_{token}".
func NewBackupName(envName, suffix string, now time.Time) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s_%s", envName, now.UTC().Format(BackupTimeLayout), suffix, token)
}

// ParseBackupTime extracts the creation time from a backup name or path.
func ParseBackupTime(id string) (time.Time, error) {
	base := id
	if i := strings.LastIndexAny(id, `/\`); i >= 0 {
		base = id[i+1:]
	}

	matches := backupTimePattern.FindStringSubmatch(base)
	if len(matches) < 3 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedBackupIdentifier, id)
	}

	ts, err := time.ParseInLocation(BackupTimeLayout, matches[1]+"_"+matches[2], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrMalformedBackupIdentifier, id, err)
	}
	return ts, nil
}
