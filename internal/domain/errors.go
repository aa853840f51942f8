package domain

import "errors"

var (
	ErrInvalidCronExpression     = errors.New("invalid cron expression")
	ErrMalformedBackupIdentifier = errors.New("malformed backup identifier")
	ErrInvalidRetention          = errors.New("invalid retention policy")

	ErrTargetNotFound = errors.New("target not found")
	ErrNoBackups      = errors.New("no backups available")
	ErrBackupNotFound = errors.New("backup not found")
)
