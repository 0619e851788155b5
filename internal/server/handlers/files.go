// Handles file metadata and content requests.

package handlers

import (
	"context"

	"github.com/wordcrafter/drive-server/internal/server/dto"
	"github.com/wordcrafter/drive-server/internal/server/reqctx"
	"github.com/wordcrafter/drive-server/internal/storage/drive"
)

// FileHandler handles file listing and content requests.
type FileHandler struct {
	Svc *Services
}

// ListFiles returns all of the current user's live files, newest first.
func (h *FileHandler) ListFiles(ctx context.Context, req *dto.EmptyRequest) (*dto.NodeListResponse, error) {
	user := reqctx.User(ctx)
	if user == nil {
		return nil, dto.Unauthorized()
	}
	return nodesToList(h.Svc.Nodes.ListFiles(user.ID)), nil
}

// ListChildren returns the current user's live nodes directly under the given
// parent folder, or under the root when no parent is given.
func (h *FileHandler) ListChildren(ctx context.Context, req *dto.ListChildrenRequest) (*dto.NodeListResponse, error) {
	user := reqctx.User(ctx)
	if user == nil {
		return nil, dto.Unauthorized()
	}
	if !req.Parent.IsZero() {
		parent, err := h.Svc.Nodes.Get(req.Parent)
		if err != nil {
			return nil, nodeError(err)
		}
		if parent.OwnerID != user.ID {
			return nil, dto.Forbidden("You do not have access to this folder")
		}
		if parent.Kind != drive.KindFolder {
			return nil, dto.BadRequest("Parent is not a folder")
		}
	}
	return nodesToList(h.Svc.Nodes.ListChildren(user.ID, req.Parent)), nil
}

// GetNode returns a single node's metadata. Public nodes are readable without
// authentication; private nodes only by their owner.
func (h *FileHandler) GetNode(ctx context.Context, req *dto.NodeRequest) (*dto.NodeResponse, error) {
	node, err := h.Svc.Nodes.Get(req.ID)
	if err != nil {
		return nil, nodeError(err)
	}
	user := reqctx.User(ctx)
	if !node.Public {
		if user == nil {
			return nil, dto.Unauthorized()
		}
		if node.OwnerID != user.ID {
			return nil, dto.Forbidden("You do not have access to this file")
		}
	}
	resp := nodeToResponse(node)
	return &resp, nil
}

// GetContent returns the raw text of a plain-text file. Unlike metadata this
// is owner-only regardless of the node's visibility.
func (h *FileHandler) GetContent(ctx context.Context, req *dto.NodeRequest) (*dto.ContentResponse, error) {
	user := reqctx.User(ctx)
	if user == nil {
		return nil, dto.Unauthorized()
	}
	node, err := h.Svc.Nodes.Get(req.ID)
	if err != nil {
		return nil, nodeError(err)
	}
	if node.OwnerID != user.ID {
		return nil, dto.Forbidden("You do not have access to this file")
	}
	if !node.IsTextFile() {
		return nil, dto.BadRequest("Not a plain-text file")
	}
	return &dto.ContentResponse{Content: node.File.Content}, nil
}
