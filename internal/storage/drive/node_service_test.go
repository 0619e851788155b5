package drive

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/maruel/ksid"
)

func newTestNodeService(t *testing.T) *NodeService {
	t.Helper()
	service, err := NewNodeService(filepath.Join(t.TempDir(), "nodes.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	return service
}

func testFile(t *testing.T, s *NodeService, ownerID ksid.ID, name string, size int64) *Node {
	t.Helper()
	now := time.Now()
	n, err := s.CreateFile(&Node{
		ID:         ksid.NewID(),
		OwnerID:    ownerID,
		Name:       name,
		UniqueName: UniqueNameFor(ownerID, now, name),
		Kind:       KindFile,
		Created:    now,
		Modified:   now,
		File:       &FileInfo{Size: size, MIMEType: "text/plain", Path: "/blobs/" + name},
	})
	if err != nil {
		t.Fatalf("Failed to create file %s: %v", name, err)
	}
	return n
}

func TestNodeValidate(t *testing.T) {
	owner := ksid.NewID()
	folder := &Node{ID: ksid.NewID(), OwnerID: owner, Name: "docs", Kind: KindFolder}
	if err := folder.Validate(); err != nil {
		t.Errorf("Valid folder rejected: %v", err)
	}

	// Folders must not carry file attributes.
	folder.File = &FileInfo{Size: 1, MIMEType: "text/plain", Path: "x"}
	if err := folder.Validate(); err == nil {
		t.Error("Folder with file attributes accepted")
	}

	// Files need them.
	file := &Node{ID: ksid.NewID(), OwnerID: owner, Name: "a.txt", UniqueName: "k", Kind: KindFile}
	if err := file.Validate(); err == nil {
		t.Error("File without file attributes accepted")
	}
	file.File = &FileInfo{Size: 1, MIMEType: "text/plain", Path: "x"}
	if err := file.Validate(); err != nil {
		t.Errorf("Valid file rejected: %v", err)
	}
}

func TestCreateFolderParentChecks(t *testing.T) {
	service := newTestNodeService(t)
	owner := ksid.NewID()
	other := ksid.NewID()

	root, err := service.CreateFolder(owner, "root", 0)
	if err != nil {
		t.Fatalf("Failed to create root folder: %v", err)
	}

	if _, err := service.CreateFolder(owner, "child", root.ID); err != nil {
		t.Errorf("Failed to create child folder: %v", err)
	}
	if _, err := service.CreateFolder(owner, "orphan", ksid.NewID()); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Expected ErrNodeNotFound for missing parent, got %v", err)
	}
	if _, err := service.CreateFolder(other, "stolen", root.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner for cross-user parent, got %v", err)
	}

	file := testFile(t, service, owner, "a.txt", 1)
	if _, err := service.CreateFolder(owner, "under-file", file.ID); !errors.Is(err, ErrNotAFolder) {
		t.Errorf("Expected ErrNotAFolder for file parent, got %v", err)
	}

	if _, err := service.Trash(owner, root.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := service.CreateFolder(owner, "in-trash", root.ID); !errors.Is(err, ErrParentTrashed) {
		t.Errorf("Expected ErrParentTrashed, got %v", err)
	}
}

func TestMoveCycleCheck(t *testing.T) {
	service := newTestNodeService(t)
	owner := ksid.NewID()

	a, _ := service.CreateFolder(owner, "a", 0)
	b, _ := service.CreateFolder(owner, "b", a.ID)
	c, _ := service.CreateFolder(owner, "c", b.ID)

	if _, err := service.Move(owner, a.ID, c.ID); !errors.Is(err, ErrFolderCycle) {
		t.Errorf("Expected ErrFolderCycle moving a under its descendant, got %v", err)
	}
	if _, err := service.Move(owner, a.ID, a.ID); !errors.Is(err, ErrFolderCycle) {
		t.Errorf("Expected ErrFolderCycle moving a under itself, got %v", err)
	}
	if _, err := service.Move(owner, c.ID, a.ID); err != nil {
		t.Errorf("Legal reparent failed: %v", err)
	}
}

func TestTrashRestore(t *testing.T) {
	service := newTestNodeService(t)
	owner := ksid.NewID()
	file := testFile(t, service, owner, "a.txt", 10)

	if got := len(service.ListFiles(owner)); got != 1 {
		t.Fatalf("Expected 1 live file, got %d", got)
	}

	trashed, err := service.Trash(owner, file.ID)
	if err != nil {
		t.Fatal(err)
	}
	if trashed.DeletedAt.IsZero() {
		t.Error("Trash did not set DeletedAt")
	}
	if got := len(service.ListFiles(owner)); got != 0 {
		t.Errorf("Trashed file still in live listing (%d entries)", got)
	}
	if got := len(service.ListTrash(owner)); got != 1 {
		t.Errorf("Expected 1 trashed file, got %d", got)
	}

	restored, err := service.Restore(owner, file.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !restored.DeletedAt.IsZero() {
		t.Error("Restore did not clear DeletedAt")
	}
	if restored.Name != file.Name || restored.File.Size != file.File.Size || restored.UniqueName != file.UniqueName {
		t.Error("Restore changed fields other than the trash state")
	}
	if got := len(service.ListFiles(owner)); got != 1 {
		t.Errorf("Restored file missing from live listing (%d entries)", got)
	}

	// Restoring a live node is a no-op.
	if _, err := service.Restore(owner, file.ID); err != nil {
		t.Errorf("Restore on a live node should be a no-op, got %v", err)
	}

	// Non-owners cannot touch the trash state.
	if _, err := service.Trash(ksid.NewID(), file.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}
}

func TestRestoreReparentsWhenParentTrashed(t *testing.T) {
	service := newTestNodeService(t)
	owner := ksid.NewID()

	folder, _ := service.CreateFolder(owner, "docs", 0)
	now := time.Now()
	file, err := service.CreateFile(&Node{
		ID: ksid.NewID(), OwnerID: owner, Name: "a.txt",
		UniqueName: UniqueNameFor(owner, now, "a.txt"), Kind: KindFile,
		ParentID: folder.ID, Created: now, Modified: now,
		File: &FileInfo{Size: 1, MIMEType: "text/plain", Path: "x"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := service.Trash(owner, file.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := service.Trash(owner, folder.ID); err != nil {
		t.Fatal(err)
	}

	restored, err := service.Restore(owner, file.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !restored.ParentID.IsZero() {
		t.Error("Restore under a trashed parent should reattach at the root")
	}
}

func TestPurge(t *testing.T) {
	service := newTestNodeService(t)
	owner := ksid.NewID()
	file := testFile(t, service, owner, "a.txt", 10)

	if _, err := service.Trash(owner, file.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := service.Purge(owner, file.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := service.Get(file.ID); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Purged node still readable, err=%v", err)
	}
	if got := len(service.ListTrash(owner)); got != 0 {
		t.Errorf("Purged node still in trash listing (%d entries)", got)
	}
	if _, err := service.Purge(owner, file.ID); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Expected ErrNodeNotFound on double purge, got %v", err)
	}
}

func TestReadableBy(t *testing.T) {
	owner := ksid.NewID()
	private := &Node{OwnerID: owner}
	public := &Node{OwnerID: owner, Public: true}

	if !private.ReadableBy(owner) {
		t.Error("Owner denied access to their own node")
	}
	if private.ReadableBy(ksid.NewID()) {
		t.Error("Non-owner allowed to read a private node")
	}
	if private.ReadableBy(0) {
		t.Error("Unauthenticated caller allowed to read a private node")
	}
	if !public.ReadableBy(0) {
		t.Error("Unauthenticated caller denied a public node")
	}
}

func TestSetContent(t *testing.T) {
	service := newTestNodeService(t)
	owner := ksid.NewID()
	file := testFile(t, service, owner, "a.txt", 5)

	updated, delta, err := service.SetContent(owner, file.ID, "longer content")
	if err != nil {
		t.Fatal(err)
	}
	if updated.File.Content != "longer content" {
		t.Errorf("Content not updated: %q", updated.File.Content)
	}
	if want := int64(len("longer content")) - 5; delta != want {
		t.Errorf("Expected delta %d, got %d", want, delta)
	}
	if updated.File.Size != int64(len("longer content")) {
		t.Errorf("Size not updated: %d", updated.File.Size)
	}
}

func TestListChildren(t *testing.T) {
	service := newTestNodeService(t)
	owner := ksid.NewID()

	folder, _ := service.CreateFolder(owner, "docs", 0)
	if _, err := service.CreateFolder(owner, "nested", folder.ID); err != nil {
		t.Fatal(err)
	}
	testFile(t, service, owner, "root.txt", 1)

	if got := len(service.ListChildren(owner, folder.ID)); got != 1 {
		t.Errorf("Expected 1 child under folder, got %d", got)
	}
	if got := len(service.ListChildren(owner, 0)); got != 2 {
		t.Errorf("Expected 2 nodes at root, got %d", got)
	}
}
