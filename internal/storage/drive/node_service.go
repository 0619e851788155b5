package drive

import (
	"errors"
	"iter"
	"sort"
	"time"

	"github.com/maruel/ksid"
	"github.com/wordcrafter/drive-server/internal/jsonldb"
	"github.com/wordcrafter/drive-server/internal/storage"
)

var (
	// ErrNodeNotFound is returned when a node does not exist.
	ErrNodeNotFound = errors.New("node not found")
	// ErrNotOwner is returned when a user tries to mutate a node they do
	// not own.
	ErrNotOwner = errors.New("node is not owned by this user")
	// ErrNotAFolder is returned when a file is used as a parent.
	ErrNotAFolder = errors.New("parent is not a folder")
	// ErrParentTrashed is returned when the parent folder is in the trash.
	ErrParentTrashed = errors.New("parent folder is in the trash")
	// ErrFolderCycle is returned when a folder move would make the folder
	// its own ancestor.
	ErrFolderCycle = errors.New("folder cannot be its own ancestor")
	// ErrNotATextFile is returned when a document operation targets a
	// non-text file.
	ErrNotATextFile = errors.New("node is not a plain-text file")
)

// NodeService manages the per-user file and folder tree.
type NodeService struct {
	table        *jsonldb.Table[*Node]
	byOwner      *jsonldb.Index[ksid.ID, *Node]
	byUniqueName *jsonldb.UniqueIndex[string, *Node]
}

// NewNodeService creates a new node service backed by the given JSONL file.
func NewNodeService(tablePath string) (*NodeService, error) {
	table, err := jsonldb.NewTable[*Node](tablePath)
	if err != nil {
		return nil, err
	}
	byOwner := jsonldb.NewIndex(table, func(n *Node) ksid.ID { return n.OwnerID })
	byUniqueName := jsonldb.NewUniqueIndex(table, func(n *Node) string { return n.UniqueName })
	return &NodeService{table: table, byOwner: byOwner, byUniqueName: byUniqueName}, nil
}

// Get returns the node with the given ID.
func (s *NodeService) Get(id ksid.ID) (*Node, error) {
	n := s.table.Get(id)
	if n == nil {
		return nil, ErrNodeNotFound
	}
	return n, nil
}

// GetByUniqueName returns the file with the given blob store key.
func (s *NodeService) GetByUniqueName(uniqueName string) (*Node, error) {
	n := s.byUniqueName.Get(uniqueName)
	if n == nil {
		return nil, ErrNodeNotFound
	}
	return n, nil
}

// checkParent validates that parentID (if set) refers to a live folder owned
// by ownerID.
func (s *NodeService) checkParent(ownerID, parentID ksid.ID) error {
	if parentID.IsZero() {
		return nil
	}
	parent := s.table.Get(parentID)
	if parent == nil {
		return ErrNodeNotFound
	}
	if parent.OwnerID != ownerID {
		return ErrNotOwner
	}
	if parent.Kind != KindFolder {
		return ErrNotAFolder
	}
	if !parent.IsLive() {
		return ErrParentTrashed
	}
	return nil
}

// wouldCycle reports whether making candidate a child of parentID would put
// candidate on its own ancestor chain.
func (s *NodeService) wouldCycle(candidate, parentID ksid.ID) bool {
	for id := parentID; !id.IsZero(); {
		if id == candidate {
			return true
		}
		n := s.table.Get(id)
		if n == nil {
			return false
		}
		id = n.ParentID
	}
	return false
}

// CreateFolder creates a folder under parentID (zero for root).
func (s *NodeService) CreateFolder(ownerID ksid.ID, name string, parentID ksid.ID) (*Node, error) {
	if err := s.checkParent(ownerID, parentID); err != nil {
		return nil, err
	}
	now := time.Now()
	n := &Node{
		ID:       ksid.NewID(),
		OwnerID:  ownerID,
		Name:     name,
		Kind:     KindFolder,
		ParentID: parentID,
		Created:  now,
		Modified: now,
	}
	if err := s.table.Append(n); err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

// CreateFile registers an already-stored file. The caller is responsible for
// having written the blob and reserved the quota beforehand.
func (s *NodeService) CreateFile(n *Node) (*Node, error) {
	if err := s.checkParent(n.OwnerID, n.ParentID); err != nil {
		return nil, err
	}
	if err := s.table.Append(n); err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

// Move reparents a node. Folders are checked against ancestor cycles.
func (s *NodeService) Move(userID, id, parentID ksid.ID) (*Node, error) {
	n := s.table.Get(id)
	if n == nil {
		return nil, ErrNodeNotFound
	}
	if n.OwnerID != userID {
		return nil, ErrNotOwner
	}
	if err := s.checkParent(userID, parentID); err != nil {
		return nil, err
	}
	if n.Kind == KindFolder && s.wouldCycle(id, parentID) {
		return nil, ErrFolderCycle
	}
	return s.table.Modify(id, func(n *Node) error {
		n.ParentID = parentID
		n.Modified = time.Now()
		return nil
	})
}

// SetPublic toggles public read access on a node.
func (s *NodeService) SetPublic(userID, id ksid.ID, public bool) (*Node, error) {
	n := s.table.Get(id)
	if n == nil {
		return nil, ErrNodeNotFound
	}
	if n.OwnerID != userID {
		return nil, ErrNotOwner
	}
	return s.table.Modify(id, func(n *Node) error {
		n.Public = public
		n.Modified = time.Now()
		return nil
	})
}

// SetContent replaces the inline text mirror of a plain-text file and
// records its new size. Returns the size delta so the caller can adjust the
// quota ledger.
func (s *NodeService) SetContent(userID, id ksid.ID, content string) (*Node, int64, error) {
	n := s.table.Get(id)
	if n == nil {
		return nil, 0, ErrNodeNotFound
	}
	if n.OwnerID != userID {
		return nil, 0, ErrNotOwner
	}
	if !n.IsTextFile() {
		return nil, 0, ErrNotATextFile
	}
	delta := int64(len(content)) - n.File.Size
	updated, err := s.table.Modify(id, func(n *Node) error {
		n.File.Content = content
		n.File.Size = int64(len(content))
		n.Modified = time.Now()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return updated, delta, nil
}

// SetDocID records the external Document Service id on a text file.
func (s *NodeService) SetDocID(id ksid.ID, docID string) (*Node, error) {
	n := s.table.Get(id)
	if n == nil {
		return nil, ErrNodeNotFound
	}
	if !n.IsTextFile() {
		return nil, ErrNotATextFile
	}
	return s.table.Modify(id, func(n *Node) error {
		n.File.DocID = docID
		n.Modified = time.Now()
		return nil
	})
}

// Trash soft-deletes a node. The node disappears from live listings but its
// bytes stay both in the Blob Store and in the owner's quota.
func (s *NodeService) Trash(userID, id ksid.ID) (*Node, error) {
	n := s.table.Get(id)
	if n == nil {
		return nil, ErrNodeNotFound
	}
	if n.OwnerID != userID {
		return nil, ErrNotOwner
	}
	// Re-trashing a trashed node just refreshes the stamp.
	return s.table.Modify(id, func(n *Node) error {
		n.DeletedAt = storage.Now()
		n.Modified = time.Now()
		return nil
	})
}

// Restore brings a trashed node back to the live tree; restoring a live node
// is a no-op. If the parent has since been trashed the node is reattached at
// the root.
func (s *NodeService) Restore(userID, id ksid.ID) (*Node, error) {
	n := s.table.Get(id)
	if n == nil {
		return nil, ErrNodeNotFound
	}
	if n.OwnerID != userID {
		return nil, ErrNotOwner
	}
	if n.IsLive() {
		return n, nil
	}
	reparent := false
	if !n.ParentID.IsZero() {
		parent := s.table.Get(n.ParentID)
		if parent == nil || !parent.IsLive() {
			reparent = true
		}
	}
	return s.table.Modify(id, func(n *Node) error {
		n.DeletedAt = 0
		if reparent {
			n.ParentID = 0
		}
		n.Modified = time.Now()
		return nil
	})
}

// Purge permanently removes a node's record, trashed or not. The blob
// object and the owner's quota usage are left untouched.
func (s *NodeService) Purge(userID, id ksid.ID) (*Node, error) {
	n := s.table.Get(id)
	if n == nil {
		return nil, ErrNodeNotFound
	}
	if n.OwnerID != userID {
		return nil, ErrNotOwner
	}
	if err := s.table.Delete(id); err != nil {
		return nil, err
	}
	return n, nil
}

// IterByOwner iterates over all of a user's nodes, live and trashed.
func (s *NodeService) IterByOwner(ownerID ksid.ID) iter.Seq[*Node] {
	return s.byOwner.Iter(ownerID)
}

// ListFiles returns a user's live files, newest first.
func (s *NodeService) ListFiles(ownerID ksid.ID) []*Node {
	return s.list(ownerID, func(n *Node) bool {
		return n.Kind == KindFile && n.IsLive()
	})
}

// ListFolders returns a user's live folders, newest first.
func (s *NodeService) ListFolders(ownerID ksid.ID) []*Node {
	return s.list(ownerID, func(n *Node) bool {
		return n.Kind == KindFolder && n.IsLive()
	})
}

// ListChildren returns a user's live nodes directly under parentID (zero
// for root), newest first.
func (s *NodeService) ListChildren(ownerID, parentID ksid.ID) []*Node {
	return s.list(ownerID, func(n *Node) bool {
		return n.IsLive() && n.ParentID == parentID
	})
}

// ListTrash returns a user's trashed nodes, most recently deleted first.
func (s *NodeService) ListTrash(ownerID ksid.ID) []*Node {
	out := s.list(ownerID, func(n *Node) bool {
		return !n.IsLive()
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].DeletedAt > out[j].DeletedAt
	})
	return out
}

func (s *NodeService) list(ownerID ksid.ID, keep func(*Node) bool) []*Node {
	var out []*Node
	for n := range s.byOwner.Iter(ownerID) {
		if keep(n) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Created.After(out[j].Created)
	})
	return out
}
