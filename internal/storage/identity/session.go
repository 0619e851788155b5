// Handles active user sessions and token revocation.

package identity

import (
	"errors"
	"iter"

	"github.com/maruel/ksid"
	"github.com/wordcrafter/drive-server/internal/jsonldb"
	"github.com/wordcrafter/drive-server/internal/storage"
)

// Session represents an active user session.
type Session struct {
	ID          ksid.ID      `json:"id" jsonschema:"description=Unique session identifier"`
	UserID      ksid.ID      `json:"user_id" jsonschema:"description=User who owns this session"`
	TokenHash   string       `json:"token_hash" jsonschema:"description=SHA-256 hash of the JWT token"`
	DeviceInfo  string       `json:"device_info" jsonschema:"description=Parsed User-Agent (browser/OS)"`
	IPAddress   string       `json:"ip_address" jsonschema:"description=Client IP address at login"`
	CountryCode string       `json:"country_code,omitempty" jsonschema:"description=ISO 3166-1 alpha-2 country code at login"`
	Created     storage.Time `json:"created" jsonschema:"description=Session creation timestamp"`
	ExpiresAt   storage.Time `json:"expires_at" jsonschema:"description=Session expiration timestamp"`
	RevokedAt   storage.Time `json:"revoked_at,omitempty" jsonschema:"description=Revocation timestamp if revoked"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	return &c
}

// GetID returns the session's ID.
func (s *Session) GetID() ksid.ID {
	return s.ID
}

// Validate checks that the session is valid.
func (s *Session) Validate() error {
	if s.ID.IsZero() {
		return errSessionIDRequired
	}
	if s.UserID.IsZero() {
		return errSessionUserIDRequired
	}
	if s.TokenHash == "" {
		return errSessionTokenHashRequired
	}
	return nil
}

var (
	errSessionIDRequired        = errors.New("session id is required")
	errSessionUserIDRequired    = errors.New("session user id is required")
	errSessionTokenHashRequired = errors.New("session token hash is required")
	errSessionNotFound          = errors.New("session not found")
)

// SessionService handles session management.
type SessionService struct {
	table    *jsonldb.Table[*Session]
	byUserID *jsonldb.Index[ksid.ID, *Session]
}

// NewSessionService creates a new session service.
func NewSessionService(tablePath string) (*SessionService, error) {
	table, err := jsonldb.NewTable[*Session](tablePath)
	if err != nil {
		return nil, err
	}
	byUserID := jsonldb.NewIndex(table, func(s *Session) ksid.ID { return s.UserID })
	return &SessionService{table: table, byUserID: byUserID}, nil
}

// CreateWithID creates a new session with a pre-specified ID. The ID is
// generated before the JWT is signed so the token can embed it.
func (s *SessionService) CreateWithID(id, userID ksid.ID, tokenHash, deviceInfo, ipAddress, countryCode string, expiresAt storage.Time) (*Session, error) {
	session := &Session{
		ID:          id,
		UserID:      userID,
		TokenHash:   tokenHash,
		DeviceInfo:  deviceInfo,
		IPAddress:   ipAddress,
		CountryCode: countryCode,
		Created:     storage.Now(),
		ExpiresAt:   expiresAt,
	}
	if err := s.table.Append(session); err != nil {
		return nil, err
	}
	return session.Clone(), nil
}

// Get retrieves a session by ID.
func (s *SessionService) Get(id ksid.ID) (*Session, error) {
	session := s.table.Get(id)
	if session == nil {
		return nil, errSessionNotFound
	}
	return session, nil
}

// IsValid reports whether the session exists, is not revoked, and has not expired.
func (s *SessionService) IsValid(id ksid.ID) (bool, error) {
	session := s.table.Get(id)
	if session == nil {
		return false, nil
	}
	if !session.RevokedAt.IsZero() {
		return false, nil
	}
	if storage.Now() > session.ExpiresAt {
		return false, nil
	}
	return true, nil
}

// Revoke marks a session as revoked. Idempotent.
func (s *SessionService) Revoke(id ksid.ID) error {
	_, err := s.table.Modify(id, func(session *Session) error {
		if session.RevokedAt.IsZero() {
			session.RevokedAt = storage.Now()
		}
		return nil
	})
	if errors.Is(err, jsonldb.ErrRowNotFound) {
		return errSessionNotFound
	}
	return err
}

// IterByUser iterates over all sessions for a user.
func (s *SessionService) IterByUser(userID ksid.ID) iter.Seq[*Session] {
	return s.byUserID.Iter(userID)
}

// CleanupExpired deletes sessions that expired more than grace ago.
// Returns the number of sessions removed.
func (s *SessionService) CleanupExpired(grace storage.Time) (int, error) {
	cutoff := storage.Now() - grace
	var stale []ksid.ID
	for session := range s.table.All() {
		if !session.ExpiresAt.IsZero() && session.ExpiresAt < cutoff {
			stale = append(stale, session.ID)
		}
	}
	for _, id := range stale {
		if err := s.table.Delete(id); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}
