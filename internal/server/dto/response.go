// Defines API response types with string IDs and formatted storage figures.

package dto

import (
	"fmt"
	"net/http"
)

// NodeResponse is the API shape of a file or folder.
type NodeResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	UniqueName string `json:"unique_name,omitempty"`
	Kind       string `json:"kind"`
	Parent     string `json:"parent,omitempty"`
	IsPublic   bool   `json:"is_public"`
	DeletedAt  int64  `json:"deleted_at,omitempty"`
	Created    int64  `json:"created"`
	Modified   int64  `json:"modified"`

	// File-only fields.
	Size     int64  `json:"size,omitempty"`
	FileType string `json:"file_type,omitempty"`
	Path     string `json:"path,omitempty"`
	DocID    string `json:"google_doc_id,omitempty"`
}

// NodeListResponse wraps a node listing.
type NodeListResponse struct {
	Nodes []NodeResponse `json:"nodes"`
}

// UserResponse is the API shape of the current user.
type UserResponse struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	AvatarURL string      `json:"avatar_url,omitempty"`
	Storage   StorageInfo `json:"storage"`
}

// StorageInfo reports quota usage in raw bytes and human form.
type StorageInfo struct {
	UsedBytes      int64  `json:"used_bytes"`
	LimitBytes     int64  `json:"limit_bytes"`
	AvailableBytes int64  `json:"available_bytes"`
	Used           string `json:"used"`
	Available      string `json:"available"`
}

// UploadedFile is one successfully uploaded file in a batch response.
type UploadedFile struct {
	ID       string `json:"id"`
	Name     string `json:"filename"`
	Size     int64  `json:"size"`
	FileType string `json:"file_type"`
	DocID    string `json:"google_doc_id,omitempty"`
}

// RejectedFile is one rejected payload in a batch response.
type RejectedFile struct {
	Name   string `json:"filename"`
	Reason string `json:"reason"`
}

// UploadResponse itemizes an upload batch outcome. Message, the storage
// figures and the target folder name mirror the original response shape.
type UploadResponse struct {
	Message    string         `json:"message"`
	Uploaded   []UploadedFile `json:"uploaded"`
	Rejected   []RejectedFile `json:"rejected,omitempty"`
	Duplicates []string       `json:"duplicates,omitempty"`
	Location   string         `json:"location,omitempty"`
	Storage    StorageInfo    `json:"storage"`
}

// FolderResponse wraps a created folder.
type FolderResponse struct {
	Folder NodeResponse `json:"folder"`
}

// HTTPStatus marks folder creation as 201 Created.
func (r *FolderResponse) HTTPStatus() int { return http.StatusCreated }

// ContentResponse carries a text file's raw content.
type ContentResponse struct {
	Content string `json:"content"`
}

// EditResponse carries the external editor URL.
type EditResponse struct {
	EditURL string `json:"editUrl"`
}

// SaveResponse reports a completed save-back.
type SaveResponse struct {
	Message string `json:"message"`
	Size    int64  `json:"size"`
}

// DownloadResponse carries a signed, time-limited download URL.
type DownloadResponse struct {
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expires_in"`
}

// LogoutResponse confirms a logout.
type LogoutResponse struct {
	Ok bool `json:"ok"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// FormatBytes renders a byte count with a binary unit suffix, e.g. "1.5 MiB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// NewStorageInfo builds a StorageInfo from raw usage figures.
func NewStorageInfo(used, limit int64) StorageInfo {
	available := max(limit-used, 0)
	return StorageInfo{
		UsedBytes:      used,
		LimitBytes:     limit,
		AvailableBytes: available,
		Used:           FormatBytes(used),
		Available:      FormatBytes(available),
	}
}
