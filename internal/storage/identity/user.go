// Package identity provides user accounts, credentials, and session tracking.
//
// Users are created on first successful identity verification against the
// external OAuth provider and are never hard-deleted. The package owns the
// per-user storage accounting fields; all mutations of StorageUsed go through
// [UserService.Modify], which is atomic with respect to concurrent commits
// for the same user.
package identity

import (
	"errors"
	"iter"
	"time"

	"github.com/maruel/ksid"
	"github.com/wordcrafter/drive-server/internal/jsonldb"
)

// DefaultStorageLimit is the storage quota assigned to new users (1 GiB).
const DefaultStorageLimit int64 = 1 << 30

// User represents a system user.
type User struct {
	ID        ksid.ID `json:"id" jsonschema:"description=Unique user identifier"`
	GoogleID  string  `json:"google_id" jsonschema:"description=User ID at the identity provider"`
	Email     string  `json:"email" jsonschema:"description=User email address"`
	Name      string  `json:"name" jsonschema:"description=User display name"`
	AvatarURL string  `json:"avatar_url,omitempty" jsonschema:"description=Profile picture URL"`

	// Storage accounting. StorageUsed never exceeds StorageLimit at the end
	// of a committed mutation.
	StorageUsed  int64 `json:"total_storage_used" jsonschema:"description=Committed storage usage in bytes"`
	StorageLimit int64 `json:"storage_limit" jsonschema:"description=Storage quota in bytes"`

	// Opaque provider credentials. Stored and forwarded only; never exposed
	// through the API.
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`

	Created  time.Time `json:"created" jsonschema:"description=Account creation timestamp"`
	Modified time.Time `json:"modified" jsonschema:"description=Last modification timestamp"`
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	c := *u
	return &c
}

// GetID returns the user's ID.
func (u *User) GetID() ksid.ID {
	return u.ID
}

// Validate checks that the user is valid.
func (u *User) Validate() error {
	if u.ID.IsZero() {
		return errUserIDRequired
	}
	if u.GoogleID == "" {
		return errProviderIDRequired
	}
	if u.Email == "" {
		return errEmailRequired
	}
	if u.StorageUsed < 0 {
		return errNegativeUsage
	}
	return nil
}

// StorageAvailable returns the remaining quota, floored at zero.
func (u *User) StorageAvailable() int64 {
	return max(u.StorageLimit-u.StorageUsed, 0)
}

var (
	errUserIDRequired     = errors.New("id is required")
	errProviderIDRequired = errors.New("provider id is required")
	errEmailRequired      = errors.New("email is required")
	errNegativeUsage      = errors.New("storage used cannot be negative")
	errUserNotFound       = errors.New("user not found")
)

// ErrUserNotFound is returned when a user does not exist.
var ErrUserNotFound = errUserNotFound

// UserService handles user management.
type UserService struct {
	table      *jsonldb.Table[*User]
	byGoogleID *jsonldb.UniqueIndex[string, *User]
}

// NewUserService creates a new user service.
func NewUserService(tablePath string) (*UserService, error) {
	table, err := jsonldb.NewTable[*User](tablePath)
	if err != nil {
		return nil, err
	}
	byGoogleID := jsonldb.NewUniqueIndex(table, func(u *User) string { return u.GoogleID })
	return &UserService{table: table, byGoogleID: byGoogleID}, nil
}

// Upsert creates the user on first verified login, or refreshes the stored
// credentials and profile on subsequent logins. The provider's refresh token
// is only replaced when the provider sent a new one.
func (s *UserService) Upsert(ident *Identity) (*User, error) {
	if ident.ExternalID == "" {
		return nil, errProviderIDRequired
	}
	if ident.Email == "" {
		return nil, errEmailRequired
	}
	if existing := s.byGoogleID.Get(ident.ExternalID); existing != nil {
		return s.table.Modify(existing.ID, func(u *User) error {
			u.Email = ident.Email
			u.Name = ident.Name
			u.AvatarURL = ident.AvatarURL
			u.AccessToken = ident.AccessToken
			if ident.RefreshToken != "" {
				u.RefreshToken = ident.RefreshToken
			}
			u.Modified = time.Now()
			return nil
		})
	}

	now := time.Now()
	user := &User{
		ID:           ksid.NewID(),
		GoogleID:     ident.ExternalID,
		Email:        ident.Email,
		Name:         ident.Name,
		AvatarURL:    ident.AvatarURL,
		StorageLimit: DefaultStorageLimit,
		AccessToken:  ident.AccessToken,
		RefreshToken: ident.RefreshToken,
		Created:      now,
		Modified:     now,
	}
	if err := s.table.Append(user); err != nil {
		return nil, err
	}
	return user.Clone(), nil
}

// Get retrieves a user by ID.
func (s *UserService) Get(id ksid.ID) (*User, error) {
	if id.IsZero() {
		return nil, errUserIDRequired
	}
	user := s.table.Get(id)
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetByExternalID retrieves a user by their provider-assigned ID. O(1) via index.
func (s *UserService) GetByExternalID(externalID string) (*User, error) {
	user := s.byGoogleID.Get(externalID)
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// Modify atomically modifies a user. The callback runs under the table's
// write lock; an error from it aborts the mutation.
func (s *UserService) Modify(id ksid.ID, fn func(user *User) error) (*User, error) {
	if id.IsZero() {
		return nil, errUserIDRequired
	}
	user, err := s.table.Modify(id, fn)
	if err != nil {
		if errors.Is(err, jsonldb.ErrRowNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// Iter iterates over all users.
func (s *UserService) Iter() iter.Seq[*User] {
	return s.table.All()
}
