package usecase

import (
	"fmt"
	"sort"
	"time"

	"github.com/semmidev/warden/internal/domain"
)

// RetentionPolicy bounds how many backups a target keeps and how young a
// backup may be when it is removed.
type RetentionPolicy struct {
	MaxBackups       int
	MinRetentionDays int
}

func (p RetentionPolicy) Validate() error {
	if p.MaxBackups < 1 {
		return fmt.Errorf("%w: max_backups must be at least 1, got %d", domain.ErrInvalidRetention, p.MaxBackups)
	}
	if p.MinRetentionDays < 0 {
		return fmt.Errorf("%w: min_retention_days must not be negative, got %d", domain.ErrInvalidRetention, p.MinRetentionDays)
	}
	return nil
}

// SortNewestFirst sorts backup ids in descending order. The embedded
// YYYYMMDD_HHMM segment makes lexical order equal creation order.
func SortNewestFirst(ids []string) {
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
}

// Prune decides which backups to delete. ids must be sorted newest first.
//
// Only the oldest remaining backup is ever considered. The pass stops at the
// first one younger than the retention floor, so nothing colder than a
// protected backup is removed either.
func Prune(ids []string, policy RetentionPolicy, now time.Time) ([]string, error) {
	remaining := ids
	var toDelete []string

	for len(remaining) > policy.MaxBackups {
		oldest := remaining[len(remaining)-1]

		created, err := domain.ParseBackupTime(oldest)
		if err != nil {
			return nil, err
		}

		deleteNotBefore := created.AddDate(0, 0, policy.MinRetentionDays)
		if now.Before(deleteNotBefore) {
			break
		}

		toDelete = append(toDelete, oldest)
		remaining = remaining[:len(remaining)-1]
	}

	return toDelete, nil
}
