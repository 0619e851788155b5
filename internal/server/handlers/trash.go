// Handles the trash lifecycle: soft delete, restore, permanent delete.

package handlers

import (
	"context"

	"github.com/wordcrafter/drive-server/internal/server/dto"
	"github.com/wordcrafter/drive-server/internal/server/reqctx"
)

// TrashHandler handles trash requests.
type TrashHandler struct {
	Svc *Services
}

// Trash moves a node to the trash. The node keeps its bytes in the blob
// store and in the owner's quota until it is permanently deleted.
func (h *TrashHandler) Trash(ctx context.Context, req *dto.NodeRequest) (*dto.NodeResponse, error) {
	user := reqctx.User(ctx)
	if user == nil {
		return nil, dto.Unauthorized()
	}
	node, err := h.Svc.Nodes.Trash(user.ID, req.ID)
	if err != nil {
		return nil, nodeError(err)
	}
	resp := nodeToResponse(node)
	return &resp, nil
}

// Restore brings a trashed node back to the live tree.
func (h *TrashHandler) Restore(ctx context.Context, req *dto.NodeRequest) (*dto.NodeResponse, error) {
	user := reqctx.User(ctx)
	if user == nil {
		return nil, dto.Unauthorized()
	}
	node, err := h.Svc.Nodes.Restore(user.ID, req.ID)
	if err != nil {
		return nil, nodeError(err)
	}
	resp := nodeToResponse(node)
	return &resp, nil
}

// Purge permanently removes a node's record from all listings including the
// trash. The blob object and the owner's storage accounting are deliberately
// left untouched.
func (h *TrashHandler) Purge(ctx context.Context, req *dto.NodeRequest) (*dto.NodeResponse, error) {
	user := reqctx.User(ctx)
	if user == nil {
		return nil, dto.Unauthorized()
	}
	node, err := h.Svc.Nodes.Purge(user.ID, req.ID)
	if err != nil {
		return nil, nodeError(err)
	}
	resp := nodeToResponse(node)
	return &resp, nil
}

// ListTrash returns the current user's trashed nodes, most recently deleted
// first.
func (h *TrashHandler) ListTrash(ctx context.Context, req *dto.EmptyRequest) (*dto.NodeListResponse, error) {
	user := reqctx.User(ctx)
	if user == nil {
		return nil, dto.Unauthorized()
	}
	return nodesToList(h.Svc.Nodes.ListTrash(user.ID)), nil
}
