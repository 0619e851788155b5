// Converts storage entities into API response types.

package handlers

import (
	"github.com/wordcrafter/drive-server/internal/server/dto"
	"github.com/wordcrafter/drive-server/internal/storage/drive"
	"github.com/wordcrafter/drive-server/internal/storage/identity"
)

func nodeToResponse(n *drive.Node) dto.NodeResponse {
	resp := dto.NodeResponse{
		ID:       n.ID.String(),
		Name:     n.Name,
		Kind:     string(n.Kind),
		IsPublic: n.Public,
		Created:  n.Created.Unix(),
		Modified: n.Modified.Unix(),
	}
	if !n.ParentID.IsZero() {
		resp.Parent = n.ParentID.String()
	}
	if !n.DeletedAt.IsZero() {
		resp.DeletedAt = int64(n.DeletedAt)
	}
	if n.File != nil {
		resp.UniqueName = n.UniqueName
		resp.Size = n.File.Size
		resp.FileType = n.File.MIMEType
		resp.Path = n.File.Path
		resp.DocID = n.File.DocID
	}
	return resp
}

func nodesToList(nodes []*drive.Node) *dto.NodeListResponse {
	out := make([]dto.NodeResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, nodeToResponse(n))
	}
	return &dto.NodeListResponse{Nodes: out}
}

func userToResponse(u *identity.User) *dto.UserResponse {
	return &dto.UserResponse{
		ID:        u.ID.String(),
		Email:     u.Email,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		Storage:   dto.NewStorageInfo(u.StorageUsed, u.StorageLimit),
	}
}
