// Serves blob content for signed download URLs.

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/wordcrafter/drive-server/internal/blob"
	"github.com/wordcrafter/drive-server/internal/server/dto"
)

// SignatureVerifier validates signed blob URLs. Implemented by blob.FSStore.
type SignatureVerifier interface {
	VerifySignature(key, sig string, expiry int64) bool
}

// BlobHandler serves raw blob bytes for valid signed URLs. No session is
// involved; possession of an unexpired signed URL is the credential.
type BlobHandler struct {
	Svc      *Services
	Verifier SignatureVerifier
}

// ServeBlob validates the signature and expiry, then streams the blob.
func (h *BlobHandler) ServeBlob(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeErrorResponse(w, dto.MissingField("key"))
		return
	}
	sig := r.URL.Query().Get("sig")
	expiry, err := strconv.ParseInt(r.URL.Query().Get("exp"), 10, 64)
	if sig == "" || err != nil {
		writeErrorResponse(w, dto.BadRequest("Missing or invalid signature"))
		return
	}
	if !h.Verifier.VerifySignature(key, sig, expiry) {
		writeErrorResponse(w, dto.Forbidden("Signature is invalid or expired"))
		return
	}

	data, contentType, err := h.Svc.Blobs.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			writeErrorResponse(w, dto.NotFound("File"))
			return
		}
		writeErrorResponse(w, dto.InternalWithError("Failed to read blob", err))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=900")
	_, _ = w.Write(data)
}
