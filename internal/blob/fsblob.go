package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FSStore stores blobs as files under a root directory, with 256-way fan-out
// by the first two characters of the key hash. Read URLs are signed with
// HMAC-SHA256 over "<key>:<expiry>" and verified statelessly, so there is no
// revocation mechanism; the URL simply stops working after the window.
type FSStore struct {
	root       string
	baseURL    string
	signingKey []byte
}

// NewFSStore creates a filesystem blob store rooted at dir. baseURL is the
// externally visible prefix for signed URLs (e.g. "http://localhost:8080").
func NewFSStore(dir, baseURL string, signingKey []byte) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &FSStore{
		root:       dir,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		signingKey: signingKey,
	}, nil
}

type blobMeta struct {
	ContentType string `json:"content_type"`
}

func (s *FSStore) pathFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	fan := hex.EncodeToString(sum[:1])
	return filepath.Join(s.root, fan, url.PathEscape(key))
}

// Put implements Store. The returned locator is the public signed-serving
// path for the key, without signature parameters.
func (s *FSStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("blob key cannot be empty")
	}
	path := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob subdirectory: %w", err)
	}
	// Write to a temp file then rename so readers never see partial content.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize blob: %w", err)
	}
	meta, err := json.Marshal(blobMeta{ContentType: contentType})
	if err == nil {
		err = os.WriteFile(path+".meta", meta, 0o644)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write blob metadata: %w", err)
	}
	return s.baseURL + "/blobs/" + url.PathEscape(key), nil
}

// Get implements Store.
func (s *FSStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	path := s.pathFor(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to read blob: %w", err)
	}
	contentType := "application/octet-stream"
	if raw, err := os.ReadFile(path + ".meta"); err == nil {
		var meta blobMeta
		if json.Unmarshal(raw, &meta) == nil && meta.ContentType != "" {
			contentType = meta.ContentType
		}
	}
	return data, contentType, nil
}

// Delete implements Store.
func (s *FSStore) Delete(ctx context.Context, key string) error {
	path := s.pathFor(key)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	_ = os.Remove(path + ".meta")
	return nil
}

// SignedReadURL implements Store.
func (s *FSStore) SignedReadURL(key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", fmt.Errorf("blob key cannot be empty")
	}
	expiry := time.Now().Add(ttl).Unix()
	sig := s.sign(key, expiry)
	return fmt.Sprintf("%s/blobs/%s?sig=%s&exp=%d", s.baseURL, url.PathEscape(key), sig, expiry), nil
}

// VerifySignature checks a signed URL's signature and expiry.
func (s *FSStore) VerifySignature(key, sig string, expiry int64) bool {
	if time.Now().Unix() > expiry {
		return false
	}
	expected := s.sign(key, expiry)
	return hmac.Equal([]byte(expected), []byte(sig))
}

func (s *FSStore) sign(key string, expiry int64) string {
	mac := hmac.New(sha256.New, s.signingKey)
	mac.Write([]byte(key + ":" + strconv.FormatInt(expiry, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
