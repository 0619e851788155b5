// Handles the external document sync endpoints for text files.

package handlers

import (
	"context"
	"log/slog"

	"github.com/wordcrafter/drive-server/internal/server/dto"
	"github.com/wordcrafter/drive-server/internal/server/reqctx"
)

// DocumentHandler handles edit-open and save-back requests against the
// external Document Service.
type DocumentHandler struct {
	Svc *Services
}

// EditOpen prepares a text file for external editing and returns the editor
// URL. The document is provisioned on first use; if it is still empty the
// file's current content is pushed into it.
func (h *DocumentHandler) EditOpen(ctx context.Context, req *dto.NodeRequest) (*dto.EditResponse, error) {
	user := reqctx.User(ctx)
	if user == nil {
		return nil, dto.Unauthorized()
	}
	if h.Svc.Bridge == nil {
		return nil, dto.Upstream("Document service", nil)
	}
	node, err := h.Svc.Nodes.Get(req.ID)
	if err != nil {
		return nil, nodeError(err)
	}
	if node.OwnerID != user.ID {
		return nil, dto.Forbidden("You do not have access to this file")
	}
	if !node.IsTextFile() {
		return nil, dto.BadRequest("Only plain-text files can be edited externally")
	}

	if node.File.DocID == "" {
		docID, err := h.Svc.Bridge.Provision(ctx, user, node.Name, node.File.Content)
		if err != nil {
			return nil, dto.Upstream("Document service", err)
		}
		node, err = h.Svc.Nodes.SetDocID(node.ID, docID)
		if err != nil {
			return nil, nodeError(err)
		}
	}

	editURL, err := h.Svc.Bridge.EditOpen(ctx, user, node.File.DocID, node.File.Content)
	if err != nil {
		return nil, dto.Upstream("Document service", err)
	}
	return &dto.EditResponse{EditURL: editURL}, nil
}

// SaveBack pulls the external document, flattens it to HTML, and stores it
// as the file's new content. The quota ledger is adjusted by the size delta.
func (h *DocumentHandler) SaveBack(ctx context.Context, req *dto.NodeRequest) (*dto.SaveResponse, error) {
	user := reqctx.User(ctx)
	if user == nil {
		return nil, dto.Unauthorized()
	}
	if h.Svc.Bridge == nil {
		return nil, dto.Upstream("Document service", nil)
	}
	node, err := h.Svc.Nodes.Get(req.ID)
	if err != nil {
		return nil, nodeError(err)
	}
	if node.OwnerID != user.ID {
		return nil, dto.Forbidden("You do not have access to this file")
	}
	if !node.IsTextFile() {
		return nil, dto.BadRequest("Only plain-text files can be saved back")
	}
	if node.File.DocID == "" {
		return nil, dto.BadRequest("File has no linked document")
	}

	content, err := h.Svc.Bridge.SaveBack(ctx, user, node.File.DocID)
	if err != nil {
		return nil, dto.Upstream("Document service", err)
	}

	updated, delta, err := h.Svc.Nodes.SetContent(user.ID, node.ID, content)
	if err != nil {
		return nil, nodeError(err)
	}
	if delta != 0 {
		if err := h.Svc.Quota.Adjust(user.ID, delta); err != nil {
			slog.WarnContext(ctx, "Failed to adjust quota after save-back", "node", node.ID, "err", err)
		}
	}
	return &dto.SaveResponse{Message: "Document saved", Size: updated.File.Size}, nil
}
