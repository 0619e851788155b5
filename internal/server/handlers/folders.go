// Handles folder creation and listing requests.

package handlers

import (
	"context"

	"github.com/maruel/ksid"
	"github.com/wordcrafter/drive-server/internal/server/dto"
	"github.com/wordcrafter/drive-server/internal/server/reqctx"
)

// FolderHandler handles folder requests.
type FolderHandler struct {
	Svc *Services
}

// CreateFolder creates a folder for the current user, optionally under a
// parent folder.
func (h *FolderHandler) CreateFolder(ctx context.Context, req *dto.CreateFolderRequest) (*dto.FolderResponse, error) {
	user := reqctx.User(ctx)
	if user == nil {
		return nil, dto.Unauthorized()
	}
	var parentID ksid.ID
	if req.Parent != "" {
		var err error
		parentID, err = ksid.Parse(req.Parent)
		if err != nil {
			return nil, dto.BadRequest("Invalid parent id")
		}
	}
	node, err := h.Svc.Nodes.CreateFolder(user.ID, req.Name, parentID)
	if err != nil {
		return nil, nodeError(err)
	}
	return &dto.FolderResponse{Folder: nodeToResponse(node)}, nil
}

// ListFolders returns all of the current user's live folders, newest first.
func (h *FolderHandler) ListFolders(ctx context.Context, req *dto.EmptyRequest) (*dto.NodeListResponse, error) {
	user := reqctx.User(ctx)
	if user == nil {
		return nil, dto.Unauthorized()
	}
	return nodesToList(h.Svc.Nodes.ListFolders(user.ID)), nil
}

// FolderFiles returns the live nodes directly inside the given folder.
func (h *FolderHandler) FolderFiles(ctx context.Context, req *dto.FolderFilesRequest) (*dto.NodeListResponse, error) {
	user := reqctx.User(ctx)
	if user == nil {
		return nil, dto.Unauthorized()
	}
	folder, err := h.Svc.Nodes.Get(req.ID)
	if err != nil {
		return nil, nodeError(err)
	}
	if folder.OwnerID != user.ID {
		return nil, dto.Forbidden("You do not have access to this folder")
	}
	return nodesToList(h.Svc.Nodes.ListChildren(user.ID, folder.ID)), nil
}
