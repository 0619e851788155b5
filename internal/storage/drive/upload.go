package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maruel/ksid"
	"github.com/wordcrafter/drive-server/internal/blob"
	"github.com/wordcrafter/drive-server/internal/storage/identity"
)

const (
	// MaxBatchFiles is the maximum number of payloads per upload batch.
	MaxBatchFiles = 5
	// MaxFileSize is the per-payload size ceiling (10 MiB).
	MaxFileSize = 10 << 20
)

// DefaultAllowedTypes is the MIME allow-list applied when none is configured.
var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "image/gif", "application/pdf", "text/plain"}

var (
	// ErrEmptyBatch is returned when an upload request carries no payloads.
	ErrEmptyBatch = errors.New("no files in upload batch")
	// ErrTooManyFiles is returned when a batch exceeds MaxBatchFiles.
	ErrTooManyFiles = fmt.Errorf("too many files in upload batch (max %d)", MaxBatchFiles)
	// ErrBlobWrite is returned when persisting a payload fails. The batch's
	// already-written blobs are deleted and the reservation is released
	// before this is returned.
	ErrBlobWrite = errors.New("failed to persist upload")
)

// Payload is one incoming file in an upload batch.
type Payload struct {
	Name     string
	MIMEType string
	Data     []byte
}

// RejectedUpload records a payload the pipeline refused, with a
// human-readable reason.
type RejectedUpload struct {
	Name   string `json:"filename"`
	Reason string `json:"reason"`
}

// BatchResult itemizes the outcome of one upload batch.
type BatchResult struct {
	Uploaded   []*Node
	Rejected   []RejectedUpload
	Duplicates []string
}

// BatchStatus classifies a batch outcome for the HTTP layer.
type BatchStatus int

const (
	// BatchFailed means nothing was uploaded.
	BatchFailed BatchStatus = iota
	// BatchPartial means some mix of uploaded, rejected and duplicate.
	BatchPartial
	// BatchComplete means every payload uploaded.
	BatchComplete
)

// Status classifies the result.
func (r *BatchResult) Status() BatchStatus {
	switch {
	case len(r.Uploaded) == 0:
		return BatchFailed
	case len(r.Rejected) == 0 && len(r.Duplicates) == 0:
		return BatchComplete
	default:
		return BatchPartial
	}
}

// DocProvisioner creates an external Document Service document for a
// plain-text upload and returns its id. Implemented by [docs.Bridge].
type DocProvisioner interface {
	Provision(ctx context.Context, owner *identity.User, title, content string) (string, error)
}

// UploadService runs the batch upload pipeline: type filter, quota
// admission, intra-batch dedup, image transcoding, concurrent blob commit,
// node registration and best-effort document provisioning.
type UploadService struct {
	nodes   *NodeService
	quota   *QuotaLedger
	blobs   blob.Store
	docs    DocProvisioner
	allowed map[string]bool
}

// NewUploadService creates the pipeline. allowedTypes nil means
// [DefaultAllowedTypes]. docs may be nil to disable document provisioning.
func NewUploadService(nodes *NodeService, quota *QuotaLedger, blobs blob.Store, docs DocProvisioner, allowedTypes []string) *UploadService {
	if allowedTypes == nil {
		allowedTypes = DefaultAllowedTypes
	}
	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[t] = true
	}
	return &UploadService{nodes: nodes, quota: quota, blobs: blobs, docs: docs, allowed: allowed}
}

// upload-internal state for one surviving payload.
type stagedFile struct {
	payload    Payload
	uniqueName string
	data       []byte
	mimeType   string
	locator    string
	node       *Node
}

// Upload runs one batch for the given owner, storing the files under
// parentID (zero for root). A returned error means the batch as a whole
// failed (bad parent, quota, validation or storage); per-payload problems
// are itemized in the result instead.
func (s *UploadService) Upload(ctx context.Context, owner *identity.User, parentID ksid.ID, payloads []Payload) (*BatchResult, error) {
	if len(payloads) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(payloads) > MaxBatchFiles {
		return nil, ErrTooManyFiles
	}
	if err := s.nodes.checkParent(owner.ID, parentID); err != nil {
		return nil, err
	}

	res := &BatchResult{}

	// Type and size filter. Per-payload rejections do not fail the batch.
	var accepted []Payload
	for _, p := range payloads {
		if !s.allowed[p.MIMEType] {
			res.Rejected = append(res.Rejected, RejectedUpload{
				Name:   p.Name,
				Reason: fmt.Sprintf("file type %s is not supported", p.MIMEType),
			})
			continue
		}
		if int64(len(p.Data)) > MaxFileSize {
			res.Rejected = append(res.Rejected, RejectedUpload{
				Name:   p.Name,
				Reason: fmt.Sprintf("file exceeds the %d MiB size limit", MaxFileSize>>20),
			})
			continue
		}
		accepted = append(accepted, p)
	}
	if len(accepted) == 0 {
		return res, nil
	}

	// Admission over the sum of accepted pre-transcode sizes. Failure
	// aborts the whole batch before anything is written.
	var reserved int64
	for _, p := range accepted {
		reserved += int64(len(p.Data))
	}
	if err := s.quota.Reserve(owner.ID, reserved); err != nil {
		return nil, err
	}

	// Intra-batch duplicate detection on the derived blob key. The batch
	// shares one timestamp so two payloads with the same filename collide.
	now := time.Now()
	var staged []*stagedFile
	seen := make(map[string]bool, len(accepted))
	for _, p := range accepted {
		uniqueName := UniqueNameFor(owner.ID, now, p.Name)
		if seen[uniqueName] {
			res.Duplicates = append(res.Duplicates, p.Name)
			continue
		}
		seen[uniqueName] = true
		staged = append(staged, &stagedFile{payload: p, uniqueName: uniqueName, data: p.Data, mimeType: p.MIMEType})
	}

	// Transcode images. The stored size and type reflect the artifact.
	kept := staged[:0]
	for _, f := range staged {
		if isImageType(f.mimeType) {
			data, err := transcodeImage(f.data)
			if err != nil {
				res.Rejected = append(res.Rejected, RejectedUpload{
					Name:   f.payload.Name,
					Reason: "image could not be decoded",
				})
				continue
			}
			f.data = data
			f.mimeType = "image/jpeg"
		}
		kept = append(kept, f)
	}
	staged = kept
	if len(staged) == 0 {
		// Everything was filtered after admission. Give the bytes back.
		if err := s.quota.Release(owner.ID, reserved); err != nil {
			slog.ErrorContext(ctx, "drive: failed to release reservation", "user", owner.ID, "err", err)
		}
		return res, nil
	}

	if err := s.commitBlobs(ctx, staged); err != nil {
		if rerr := s.quota.Release(owner.ID, reserved); rerr != nil {
			slog.ErrorContext(ctx, "drive: failed to release reservation", "user", owner.ID, "err", rerr)
		}
		return nil, err
	}

	// Register the nodes. A registration failure is treated like a write
	// failure: undo the batch's blobs and the reservation.
	var actual int64
	for i, f := range staged {
		n := &Node{
			ID:         ksid.NewID(),
			OwnerID:    owner.ID,
			Name:       f.payload.Name,
			UniqueName: f.uniqueName,
			Kind:       KindFile,
			ParentID:   parentID,
			Created:    now,
			Modified:   now,
			File: &FileInfo{
				Size:     int64(len(f.data)),
				MIMEType: f.mimeType,
				Path:     f.locator,
			},
		}
		if f.mimeType == "text/plain" {
			n.File.Content = string(f.data)
		}
		created, err := s.nodes.CreateFile(n)
		if err != nil {
			s.deleteBlobs(ctx, staged)
			for _, prev := range staged[:i] {
				if derr := s.nodes.table.Delete(prev.node.ID); derr != nil {
					slog.ErrorContext(ctx, "drive: failed to undo node registration", "node", prev.node.ID, "err", derr)
				}
			}
			if rerr := s.quota.Release(owner.ID, reserved); rerr != nil {
				slog.ErrorContext(ctx, "drive: failed to release reservation", "user", owner.ID, "err", rerr)
			}
			return nil, fmt.Errorf("%w: %v", ErrBlobWrite, err)
		}
		f.node = created
		actual += n.File.Size
	}

	// Reconcile the reservation with the post-transcode byte count.
	if err := s.quota.Commit(owner.ID, reserved, actual); err != nil {
		slog.ErrorContext(ctx, "drive: failed to commit quota", "user", owner.ID, "err", err)
	}

	s.provisionDocs(ctx, owner, staged)

	for _, f := range staged {
		res.Uploaded = append(res.Uploaded, f.node)
	}
	return res, nil
}

// commitBlobs writes all staged payloads concurrently. On any failure the
// batch's already-written blobs are deleted and ErrBlobWrite is returned.
func (s *UploadService) commitBlobs(ctx context.Context, staged []*stagedFile) error {
	var wg sync.WaitGroup
	errs := make([]error, len(staged))
	for i, f := range staged {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locator, err := s.blobs.Put(ctx, f.uniqueName, f.data, f.mimeType)
			if err != nil {
				errs[i] = err
				return
			}
			f.locator = locator
		}()
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		s.deleteBlobs(ctx, staged)
		return fmt.Errorf("%w: %v", ErrBlobWrite, err)
	}
	return nil
}

// deleteBlobs best-effort removes the batch's written blobs.
func (s *UploadService) deleteBlobs(ctx context.Context, staged []*stagedFile) {
	for _, f := range staged {
		if f.locator == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, f.uniqueName); err != nil {
			slog.ErrorContext(ctx, "drive: failed to delete blob during rollback", "key", f.uniqueName, "err", err)
		}
	}
}

// provisionDocs creates external documents for the batch's plain-text files,
// concurrently and best-effort. A failure leaves the node without a doc id.
func (s *UploadService) provisionDocs(ctx context.Context, owner *identity.User, staged []*stagedFile) {
	if s.docs == nil {
		return
	}
	var wg sync.WaitGroup
	for _, f := range staged {
		if !f.node.IsTextFile() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			docID, err := s.docs.Provision(ctx, owner, f.node.Name, f.node.File.Content)
			if err != nil {
				slog.WarnContext(ctx, "drive: document provisioning failed", "node", f.node.ID, "err", err)
				return
			}
			updated, err := s.nodes.SetDocID(f.node.ID, docID)
			if err != nil {
				slog.WarnContext(ctx, "drive: failed to record doc id", "node", f.node.ID, "err", err)
				return
			}
			f.node = updated
		}()
	}
	wg.Wait()
}
