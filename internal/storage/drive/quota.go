package drive

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/maruel/ksid"
	"github.com/wordcrafter/drive-server/internal/storage/identity"
)

// ErrQuotaExceeded is the sentinel wrapped by [QuotaError].
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// QuotaError reports a failed reservation with the figures the client needs
// to explain the rejection.
type QuotaError struct {
	Requested int64
	Used      int64
	Limit     int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("storage quota exceeded: requested %d bytes with %d of %d used", e.Requested, e.Used, e.Limit)
}

// Unwrap lets callers match with errors.Is(err, ErrQuotaExceeded).
func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}

// Available returns the bytes still usable when the error occurred.
func (e *QuotaError) Available() int64 {
	return max(e.Limit-e.Used, 0)
}

// QuotaLedger tracks per-user storage usage against the user's limit.
//
// All mutations run inside [identity.UserService.Modify], which holds the
// user table's write lock for the whole read-check-write. Concurrent
// reservations therefore serialize, and the committed usage can never
// exceed the limit.
type QuotaLedger struct {
	users *identity.UserService
}

// NewQuotaLedger creates a ledger over the given user service.
func NewQuotaLedger(users *identity.UserService) *QuotaLedger {
	return &QuotaLedger{users: users}
}

// Reserve atomically adds bytes to the user's usage, failing with a
// [QuotaError] if the reservation would push usage past the limit. Nothing
// is recorded on failure.
func (l *QuotaLedger) Reserve(userID ksid.ID, bytes int64) error {
	if bytes < 0 {
		return fmt.Errorf("cannot reserve %d bytes", bytes)
	}
	_, err := l.users.Modify(userID, func(u *identity.User) error {
		if u.StorageUsed+bytes > u.StorageLimit {
			return &QuotaError{Requested: bytes, Used: u.StorageUsed, Limit: u.StorageLimit}
		}
		u.StorageUsed += bytes
		return nil
	})
	return err
}

// Release gives back a prior reservation, flooring usage at zero.
func (l *QuotaLedger) Release(userID ksid.ID, bytes int64) error {
	if bytes < 0 {
		return fmt.Errorf("cannot release %d bytes", bytes)
	}
	_, err := l.users.Modify(userID, func(u *identity.User) error {
		u.StorageUsed = max(u.StorageUsed-bytes, 0)
		return nil
	})
	return err
}

// Commit reconciles a reservation with the actual persisted byte count,
// typically after transcoding changed the stored sizes. The delta is applied
// unconditionally: admission already happened against the pre-transcode
// sizes and the artifacts are on disk. Usage is floored at zero.
func (l *QuotaLedger) Commit(userID ksid.ID, reserved, actual int64) error {
	_, err := l.users.Modify(userID, func(u *identity.User) error {
		u.StorageUsed = max(u.StorageUsed-reserved+actual, 0)
		if u.StorageUsed > u.StorageLimit {
			slog.Debug("Committed usage exceeds the storage limit",
				"user", userID, "used", u.StorageUsed, "limit", u.StorageLimit)
		}
		return nil
	})
	return err
}

// Adjust applies a signed delta to the user's usage. A negative delta
// (transcoding shrank the file, or a text edit got shorter) is always
// applied; a positive one is bounds-checked like a reservation.
func (l *QuotaLedger) Adjust(userID ksid.ID, delta int64) error {
	if delta >= 0 {
		return l.Reserve(userID, delta)
	}
	return l.Release(userID, -delta)
}

// Available returns the user's remaining quota.
func (l *QuotaLedger) Available(userID ksid.ID) (int64, error) {
	u, err := l.users.Get(userID)
	if err != nil {
		return 0, err
	}
	return u.StorageAvailable(), nil
}
