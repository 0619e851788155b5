// Handles signed download URL generation.

package handlers

import (
	"context"

	"github.com/wordcrafter/drive-server/internal/blob"
	"github.com/wordcrafter/drive-server/internal/server/dto"
	"github.com/wordcrafter/drive-server/internal/server/reqctx"
	"github.com/wordcrafter/drive-server/internal/storage/drive"
)

// DownloadHandler handles download URL requests.
type DownloadHandler struct {
	Svc *Services
}

// Download returns a signed, time-limited URL for a file's blob. Public
// files are downloadable without authentication; private files only by
// their owner.
func (h *DownloadHandler) Download(ctx context.Context, req *dto.NodeRequest) (*dto.DownloadResponse, error) {
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
	if node.Kind != drive.KindFile || node.File == nil {
		return nil, dto.BadRequest("Folders cannot be downloaded")
	}
	url, err := h.Svc.Blobs.SignedReadURL(node.UniqueName, blob.DownloadTTL)
	if err != nil {
		return nil, dto.Upstream("Blob store", err)
	}
	return &dto.DownloadResponse{
		URL:       url,
		ExpiresIn: int64(blob.DownloadTTL.Seconds()),
	}, nil
}
