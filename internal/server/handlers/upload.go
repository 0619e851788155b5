// Handles batch file uploads (multipart/form-data).

package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/maruel/ksid"
	"github.com/wordcrafter/drive-server/internal/server/dto"
	"github.com/wordcrafter/drive-server/internal/server/reqctx"
	"github.com/wordcrafter/drive-server/internal/storage/drive"
)

// UploadHandler handles upload requests. This is a raw http.HandlerFunc
// because it consumes multipart forms.
type UploadHandler struct {
	Svc *Services
	Cfg *Config
}

// maxUploadMemory caps how much of the multipart form is buffered in memory.
const maxUploadMemory = 10 << 20

// Upload accepts up to five files under the "files" form field, runs them
// through the upload pipeline, and classifies the outcome: 201 when every
// file was stored, 207 on a mix of stored and rejected, 400 when nothing
// survived.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user := reqctx.User(r.Context())
	if user == nil {
		writeErrorResponse(w, dto.Unauthorized())
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeErrorResponse(w, dto.BadRequest("Invalid multipart form"))
		return
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
		writeErrorResponse(w, dto.MissingField("files"))
		return
	}

	// An optional "parent" form field targets a folder; absent means root.
	var parentID ksid.ID
	if raw := r.FormValue("parent"); raw != "" {
		var err error
		if parentID, err = ksid.Parse(raw); err != nil {
			writeErrorResponse(w, dto.BadRequest("Invalid parent folder id"))
			return
		}
	}

	var payloads []drive.Payload
	for _, header := range r.MultipartForm.File["files"] {
		file, err := header.Open()
		if err != nil {
			writeErrorResponse(w, dto.InternalWithError("Failed to open uploaded file", err))
			return
		}
		data, err := io.ReadAll(file)
		if cerr := file.Close(); cerr != nil {
			slog.Error("Failed to close uploaded file", "error", cerr)
		}
		if err != nil {
			writeErrorResponse(w, dto.InternalWithError("Failed to read uploaded file", err))
			return
		}
		payloads = append(payloads, drive.Payload{
			Name:     header.Filename,
			MIMEType: payloadMIMEType(header.Header.Get("Content-Type"), header.Filename),
			Data:     data,
		})
	}

	result, err := h.Svc.Upload.Upload(r.Context(), user, parentID, payloads)
	if err != nil {
		switch {
		case errors.Is(err, drive.ErrEmptyBatch), errors.Is(err, drive.ErrTooManyFiles):
			writeErrorResponse(w, dto.BadRequest(err.Error()))
		case errors.Is(err, drive.ErrBlobWrite):
			writeErrorResponse(w, dto.Upstream("Blob store", err))
		default:
			writeErrorResponse(w, nodeError(err))
		}
		return
	}

	// Refresh the user so the storage figures reflect the committed batch.
	current, err := h.Svc.User.Get(user.ID)
	if err != nil {
		current = user
	}

	resp := &dto.UploadResponse{
		Uploaded:   make([]dto.UploadedFile, 0, len(result.Uploaded)),
		Duplicates: result.Duplicates,
		Storage:    dto.NewStorageInfo(current.StorageUsed, current.StorageLimit),
	}
	if !parentID.IsZero() {
		if parent, err := h.Svc.Nodes.Get(parentID); err == nil {
			resp.Location = parent.Name
		}
	}
	for _, n := range result.Uploaded {
		resp.Uploaded = append(resp.Uploaded, dto.UploadedFile{
			ID:       n.ID.String(),
			Name:     n.Name,
			Size:     n.File.Size,
			FileType: n.File.MIMEType,
			DocID:    n.File.DocID,
		})
	}
	for _, rej := range result.Rejected {
		resp.Rejected = append(resp.Rejected, dto.RejectedFile{Name: rej.Name, Reason: rej.Reason})
	}

	var status int
	switch result.Status() {
	case drive.BatchComplete:
		status = http.StatusCreated
		resp.Message = "All files uploaded"
	case drive.BatchPartial:
		status = http.StatusMultiStatus
		resp.Message = "Some files were not uploaded"
	default:
		status = http.StatusBadRequest
		resp.Message = "No files were uploaded"
	}
	writeJSON(w, status, resp)
}

// payloadMIMEType normalizes the declared content type, falling back to the
// filename extension when the part carries none.
func payloadMIMEType(declared, filename string) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	if mt := mime.TypeByExtension(filepath.Ext(filename)); mt != "" {
		if parsed, _, err := mime.ParseMediaType(mt); err == nil {
			return parsed
		}
	}
	return "application/octet-stream"
}
