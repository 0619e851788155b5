// Defines API request types with path/query/json binding tags.

package dto

import "github.com/maruel/ksid"

// EmptyRequest is used by endpoints that take no input.
type EmptyRequest struct{}

// Validate implements Validatable.
func (r *EmptyRequest) Validate() error { return nil }

// HealthRequest is the health check request.
type HealthRequest struct{}

// Validate implements Validatable.
func (r *HealthRequest) Validate() error { return nil }

// NodeRequest targets a single node by path id.
type NodeRequest struct {
	ID ksid.ID `path:"id"`
}

// Validate implements Validatable.
func (r *NodeRequest) Validate() error {
	if r.ID.IsZero() {
		return MissingField("id")
	}
	return nil
}

// ListChildrenRequest lists nodes under a parent; empty parent means root.
type ListChildrenRequest struct {
	Parent ksid.ID `query:"parent"`
}

// Validate implements Validatable.
func (r *ListChildrenRequest) Validate() error { return nil }

// FolderFilesRequest lists children of the folder in the path.
type FolderFilesRequest struct {
	ID ksid.ID `path:"id"`
}

// Validate implements Validatable.
func (r *FolderFilesRequest) Validate() error {
	if r.ID.IsZero() {
		return MissingField("id")
	}
	return nil
}

// CreateFolderRequest creates a folder, optionally under a parent.
type CreateFolderRequest struct {
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
}

// Validate implements Validatable.
func (r *CreateFolderRequest) Validate() error {
	if r.Name == "" {
		return MissingField("name")
	}
	return nil
}

// LogoutRequest is the logout request body (empty).
type LogoutRequest struct{}

// Validate implements Validatable.
func (r *LogoutRequest) Validate() error { return nil }

// GetMeRequest fetches the current user.
type GetMeRequest struct{}

// Validate implements Validatable.
func (r *GetMeRequest) Validate() error { return nil }
