// Package drive implements the file/folder storage model: the node tree,
// per-user quota accounting, the batch upload pipeline, and the trash
// lifecycle.
//
// A Node is either a file or a folder (a tagged variant: folders never carry
// file attributes). Files reference their binary content through a Blob Store
// locator and, for plain-text files, may mirror their content inline and in
// an external Document Service document.
package drive

import (
	"errors"
	"fmt"
	"time"

	"github.com/maruel/ksid"
	"github.com/wordcrafter/drive-server/internal/storage"
)

// Kind discriminates files from folders.
type Kind string

const (
	// KindFile is a binary or text file backed by the Blob Store.
	KindFile Kind = "file"
	// KindFolder is a container node with no content of its own.
	KindFolder Kind = "folder"
)

// FileInfo holds the attributes only files carry.
type FileInfo struct {
	// Size is the persisted byte count, post-transcoding.
	Size int64 `json:"size" jsonschema:"description=Stored size in bytes"`
	// MIMEType is the stored content type, post-transcoding.
	MIMEType string `json:"file_type" jsonschema:"description=MIME type of the stored artifact"`
	// Path is the Blob Store locator.
	Path string `json:"path" jsonschema:"description=Blob store locator"`
	// Content mirrors the text body inline. Plain-text files only.
	Content string `json:"content,omitempty" jsonschema:"description=Inline text mirror for plain-text files"`
	// DocID is the external Document Service id, set once provisioned.
	// Plain-text files only.
	DocID string `json:"google_doc_id,omitempty" jsonschema:"description=External document id once provisioned"`
}

// Node is a file or folder in a user's hierarchy.
type Node struct {
	ID      ksid.ID `json:"id" jsonschema:"description=Unique node identifier"`
	OwnerID ksid.ID `json:"user" jsonschema:"description=Owning user"`
	// Name is the user-facing display name. Duplicates are allowed.
	Name string `json:"name" jsonschema:"description=Display name"`
	// UniqueName is the storage-layer key used in the Blob Store namespace.
	// Unique across all nodes; derived as <ownerID>-<unix>-<name>.
	UniqueName string `json:"unique_name" jsonschema:"description=Blob store key"`
	Kind       Kind   `json:"kind" jsonschema:"description=file or folder"`
	// ParentID references a live folder of the same owner, or zero for root.
	ParentID ksid.ID `json:"parent,omitempty" jsonschema:"description=Parent folder"`
	Public   bool    `json:"is_public" jsonschema:"description=Publicly readable"`
	// DeletedAt is zero for live nodes and a timestamp once trashed.
	DeletedAt storage.Time `json:"deleted_at,omitempty" jsonschema:"description=Soft-delete timestamp"`

	// File is set exactly when Kind == KindFile.
	File *FileInfo `json:"file,omitempty"`

	Created  time.Time `json:"created" jsonschema:"description=Creation timestamp"`
	Modified time.Time `json:"modified" jsonschema:"description=Last modification timestamp"`
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	if n.File != nil {
		f := *n.File
		c.File = &f
	}
	return &c
}

// GetID returns the node's ID.
func (n *Node) GetID() ksid.ID {
	return n.ID
}

// Validate checks the node invariants, in particular the file/folder
// disjointness of attributes.
func (n *Node) Validate() error {
	if n.ID.IsZero() {
		return errNodeIDRequired
	}
	if n.OwnerID.IsZero() {
		return errOwnerRequired
	}
	if n.Name == "" {
		return errNameRequired
	}
	switch n.Kind {
	case KindFile:
		if n.File == nil {
			return errFileInfoRequired
		}
		if n.File.Size < 0 {
			return errNegativeSize
		}
		if n.File.MIMEType == "" {
			return errMIMETypeRequired
		}
		if n.File.Path == "" {
			return errPathRequired
		}
		if n.UniqueName == "" {
			return errUniqueNameRequired
		}
	case KindFolder:
		if n.File != nil {
			return errFolderWithFileInfo
		}
	default:
		return fmt.Errorf("unknown node kind %q", n.Kind)
	}
	return nil
}

// IsLive reports whether the node has not been trashed.
func (n *Node) IsLive() bool {
	return n.DeletedAt.IsZero()
}

// IsTextFile reports whether the node is a plain-text file, the only kind
// mirrored into the external Document Service.
func (n *Node) IsTextFile() bool {
	return n.Kind == KindFile && n.File != nil && n.File.MIMEType == "text/plain"
}

// ReadableBy reports whether the given user may read the node's metadata.
// A zero userID means unauthenticated; public nodes are readable by anyone.
func (n *Node) ReadableBy(userID ksid.ID) bool {
	return n.Public || (!userID.IsZero() && n.OwnerID == userID)
}

// UniqueNameFor derives the storage-layer key for a file. The owner and
// upload timestamp prefix lets distinct users (and distinct uploads) store
// files with the same display name without colliding in the blob namespace.
func UniqueNameFor(ownerID ksid.ID, at time.Time, name string) string {
	return fmt.Sprintf("%s-%d-%s", ownerID, at.Unix(), name)
}

var (
	errNodeIDRequired     = errors.New("node id is required")
	errOwnerRequired      = errors.New("owner is required")
	errNameRequired       = errors.New("name is required")
	errFileInfoRequired   = errors.New("file attributes are required for files")
	errFolderWithFileInfo = errors.New("folders cannot carry file attributes")
	errNegativeSize       = errors.New("size cannot be negative")
	errMIMETypeRequired   = errors.New("file type is required")
	errPathRequired       = errors.New("path is required")
	errUniqueNameRequired = errors.New("unique name is required")
)
