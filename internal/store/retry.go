package store

import (
	"strings"
	"time"
)

const (
	busyAttempts = 5
	busyBackoff  = 20 * time.Millisecond
)

// retryOnBusy reruns fn while sqlite reports the database as locked,
// backing off linearly. Other errors are returned at once.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 1; attempt <= busyAttempts; attempt++ {
		err = fn()
		if !isSQLiteBusy(err) {
			return err
		}
		if attempt < busyAttempts {
			time.Sleep(time.Duration(attempt) * busyBackoff)
		}
	}
	return err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
