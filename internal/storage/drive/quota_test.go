package drive

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wordcrafter/drive-server/internal/storage/identity"
)

func newTestLedger(t *testing.T) (*QuotaLedger, *identity.User, *identity.UserService) {
	t.Helper()
	users, err := identity.NewUserService(filepath.Join(t.TempDir(), "users.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	user, err := users.Upsert(&identity.Identity{
		ExternalID:  "google-1",
		Email:       "quota@example.com",
		Name:        "Quota User",
		AccessToken: "tok",
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewQuotaLedger(users), user, users
}

func setUsage(t *testing.T, users *identity.UserService, user *identity.User, used, limit int64) {
	t.Helper()
	if _, err := users.Modify(user.ID, func(u *identity.User) error {
		u.StorageUsed = used
		u.StorageLimit = limit
		return nil
	}); err != nil {
		t.Fatal(err)
	}
}

func usage(t *testing.T, users *identity.UserService, user *identity.User) int64 {
	t.Helper()
	u, err := users.Get(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	return u.StorageUsed
}

func TestQuotaReserve(t *testing.T) {
	ledger, user, users := newTestLedger(t)
	setUsage(t, users, user, 900, 1000)

	// A 150-byte reservation over the 100 remaining bytes fails and
	// records nothing.
	err := ledger.Reserve(user.ID, 150)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Expected ErrQuotaExceeded, got %v", err)
	}
	var qe *QuotaError
	if !errors.As(err, &qe) {
		t.Fatal("Quota failure should carry a *QuotaError")
	}
	if qe.Requested != 150 || qe.Limit != 1000 || qe.Available() != 100 {
		t.Errorf("Wrong figures in quota error: %+v", qe)
	}
	if got := usage(t, users, user); got != 900 {
		t.Errorf("Failed reservation changed usage to %d", got)
	}

	// A 90-byte reservation fits.
	if err := ledger.Reserve(user.ID, 90); err != nil {
		t.Fatal(err)
	}
	if got := usage(t, users, user); got != 990 {
		t.Errorf("Expected usage 990, got %d", got)
	}

	// Exactly up to the limit is allowed.
	if err := ledger.Reserve(user.ID, 10); err != nil {
		t.Errorf("Reservation up to the limit rejected: %v", err)
	}
	if err := ledger.Reserve(user.ID, 1); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Reservation past the limit accepted, err=%v", err)
	}
}

func TestQuotaRelease(t *testing.T) {
	ledger, user, users := newTestLedger(t)
	setUsage(t, users, user, 500, 1000)

	if err := ledger.Release(user.ID, 200); err != nil {
		t.Fatal(err)
	}
	if got := usage(t, users, user); got != 300 {
		t.Errorf("Expected usage 300, got %d", got)
	}

	// Over-release floors at zero.
	if err := ledger.Release(user.ID, 1000); err != nil {
		t.Fatal(err)
	}
	if got := usage(t, users, user); got != 0 {
		t.Errorf("Expected usage floored at 0, got %d", got)
	}
}

func TestQuotaConcurrentReserve(t *testing.T) {
	ledger, user, users := newTestLedger(t)
	setUsage(t, users, user, 0, 50)

	// 100 racing one-byte reservations against 50 bytes of headroom. The
	// ceiling check and the increment share the user table's write lock, so
	// exactly the headroom is granted and the rest fail cleanly.
	const attempts = 100
	var wg sync.WaitGroup
	var accepted atomic.Int64
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ledger.Reserve(user.ID, 1)
			switch {
			case err == nil:
				accepted.Add(1)
			case !errors.Is(err, ErrQuotaExceeded):
				t.Errorf("Unexpected reservation error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := accepted.Load(); got != 50 {
		t.Errorf("Accepted %d reservations, want 50", got)
	}
	if got := usage(t, users, user); got != 50 {
		t.Errorf("Usage after racing reservations is %d, want 50", got)
	}

	// Racing releases never push usage below zero.
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.Release(user.ID, 20); err != nil {
				t.Errorf("Release: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := usage(t, users, user); got != 0 {
		t.Errorf("Usage after racing releases is %d, want 0", got)
	}
}

func TestQuotaCommit(t *testing.T) {
	ledger, user, users := newTestLedger(t)
	setUsage(t, users, user, 0, 1000)

	if err := ledger.Reserve(user.ID, 800); err != nil {
		t.Fatal(err)
	}
	// Transcoding shrank the batch to 600 actual bytes.
	if err := ledger.Commit(user.ID, 800, 600); err != nil {
		t.Fatal(err)
	}
	if got := usage(t, users, user); got != 600 {
		t.Errorf("Expected usage 600 after commit, got %d", got)
	}

	avail, err := ledger.Available(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if avail != 400 {
		t.Errorf("Expected 400 available, got %d", avail)
	}
}

func TestQuotaCommitGrowthPastLimit(t *testing.T) {
	ledger, user, users := newTestLedger(t)
	setUsage(t, users, user, 960, 1000)

	// A 40-byte image is admitted, then transcoding grows it to 80 bytes.
	// The commit lands the artifact anyway; usage goes over the limit and
	// the next reservation pays for it.
	if err := ledger.Reserve(user.ID, 40); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Commit(user.ID, 40, 80); err != nil {
		t.Fatal(err)
	}
	if got := usage(t, users, user); got != 1040 {
		t.Errorf("Expected usage 1040 after commit, got %d", got)
	}
	avail, err := ledger.Available(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if avail != 0 {
		t.Errorf("Expected 0 available past the limit, got %d", avail)
	}
	if err := ledger.Reserve(user.ID, 1); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Reservation past the limit accepted, err=%v", err)
	}
}
