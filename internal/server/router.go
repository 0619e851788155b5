// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"

	"github.com/wordcrafter/drive-server/internal/server/handlers"
	"github.com/wordcrafter/drive-server/internal/server/ratelimit"
)

// NewRouter creates and configures the HTTP router. All API endpoints live
// under /api; raw blob bytes are served at /blobs/{key} against signed URLs.
func NewRouter(svc *handlers.Services, cfg *handlers.Config, limiters *ratelimit.Config, verifier handlers.SignatureVerifier) http.Handler {
	mux := &http.ServeMux{}

	authh := &handlers.AuthHandler{Svc: svc, Cfg: cfg}
	fh := &handlers.FileHandler{Svc: svc}
	folderh := &handlers.FolderHandler{Svc: svc}
	uph := &handlers.UploadHandler{Svc: svc, Cfg: cfg}
	th := &handlers.TrashHandler{Svc: svc}
	dlh := &handlers.DownloadHandler{Svc: svc}
	doch := &handlers.DocumentHandler{Svc: svc}
	hh := &handlers.HealthHandler{Cfg: cfg}

	// Health check
	mux.Handle("GET /api/health", Wrap(hh.Health, cfg, limiters))

	// Auth endpoints
	if svc.Provider != nil {
		oh := &handlers.OAuthHandler{Svc: svc, Cfg: cfg, Auth: authh}
		mux.Handle("GET /api/auth/oauth/google", WrapRaw(oh.LoginRedirect, limiters))
		mux.Handle("GET /api/auth/oauth/google/callback", WrapRaw(oh.Callback, limiters))
	}
	mux.Handle("GET /api/auth/me", WrapAuth(authh.GetMe, svc, cfg, limiters))
	mux.Handle("POST /api/auth/logout", WrapAuth(authh.Logout, svc, cfg, limiters))

	// File listings and metadata
	mux.Handle("GET /api/files", WrapAuth(fh.ListFiles, svc, cfg, limiters))
	mux.Handle("GET /api/getfiles", WrapAuth(fh.ListChildren, svc, cfg, limiters))
	mux.Handle("GET /api/files/{id}", WrapMaybeAuth(fh.GetNode, svc, cfg, limiters))
	mux.Handle("GET /api/files/{id}/content", WrapAuth(fh.GetContent, svc, cfg, limiters))

	// Folders
	mux.Handle("GET /api/folders", WrapAuth(folderh.ListFolders, svc, cfg, limiters))
	mux.Handle("POST /api/folders", WrapAuth(folderh.CreateFolder, svc, cfg, limiters))
	mux.Handle("GET /api/folders/{id}/files", WrapAuth(folderh.FolderFiles, svc, cfg, limiters))

	// Upload (multipart/form-data)
	mux.Handle("POST /api/upload", WrapAuthRaw(uph.Upload, svc, cfg, limiters))

	// Trash lifecycle
	mux.Handle("GET /api/trash", WrapAuth(th.ListTrash, svc, cfg, limiters))
	mux.Handle("POST /api/files/{id}/trash", WrapAuth(th.Trash, svc, cfg, limiters))
	mux.Handle("POST /api/files/{id}/restore", WrapAuth(th.Restore, svc, cfg, limiters))
	mux.Handle("DELETE /api/files/{id}/permanent", WrapAuth(th.Purge, svc, cfg, limiters))

	// Downloads (signed URLs). Both spellings are served for compatibility.
	mux.Handle("GET /api/download/{id}", WrapMaybeAuth(dlh.Download, svc, cfg, limiters))
	mux.Handle("GET /api/downloadfile/{id}", WrapMaybeAuth(dlh.Download, svc, cfg, limiters))

	// External document sync
	mux.Handle("POST /api/files/{id}/edit", WrapAuth(doch.EditOpen, svc, cfg, limiters))
	mux.Handle("PUT /api/files/{id}/content", WrapAuth(doch.SaveBack, svc, cfg, limiters))

	// Raw blob serving against signed URLs.
	if verifier != nil {
		bh := &handlers.BlobHandler{Svc: svc, Verifier: verifier}
		mux.Handle("GET /blobs/{key}", WrapRaw(bh.ServeBlob, limiters))
	}

	return mux
}
