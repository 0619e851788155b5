// Defines shared service dependencies for handlers.

package handlers

import (
	"github.com/wordcrafter/drive-server/internal/blob"
	"github.com/wordcrafter/drive-server/internal/docs"
	"github.com/wordcrafter/drive-server/internal/server/ipgeo"
	"github.com/wordcrafter/drive-server/internal/storage/drive"
	"github.com/wordcrafter/drive-server/internal/storage/identity"
)

// Services holds all service dependencies for handlers.
type Services struct {
	User     *identity.UserService
	Session  *identity.SessionService
	Nodes    *drive.NodeService
	Quota    *drive.QuotaLedger
	Upload   *drive.UploadService
	Blobs    blob.Store
	Bridge   *docs.Bridge      // may be nil (document sync disabled)
	Provider identity.Provider // may be nil (OAuth disabled)
	Geo      *ipgeo.Checker    // may be nil (no MMDB configured)
}

// Config holds configuration values needed by handlers.
type Config struct {
	JWTSecret           string
	BaseURL             string
	Version             string
	MaxRequestBodyBytes int64
}
