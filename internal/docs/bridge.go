package docs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/wordcrafter/drive-server/internal/storage/identity"
)

// FetcherFactory builds an ImageFetcher authenticated as one user, used to
// pull embedded images during save-back.
type FetcherFactory func(ctx context.Context, accessToken, refreshToken string) ImageFetcher

// Bridge reconciles a file's stored text with its external document. All
// clients are built per call from the acting user's current credentials.
type Bridge struct {
	factory  ClientFactory
	fetchers FetcherFactory
}

// NewBridge creates a bridge over the given client factories.
func NewBridge(factory ClientFactory, fetchers FetcherFactory) *Bridge {
	return &Bridge{factory: factory, fetchers: fetchers}
}

// Provision creates a new external document titled after the file and seeds
// it with the file's content. A failed seed is logged and tolerated since
// edit-open pushes content into empty documents anyway.
func (b *Bridge) Provision(ctx context.Context, owner *identity.User, title, content string) (string, error) {
	svc := b.factory(ctx, owner.AccessToken, owner.RefreshToken)
	docID, err := svc.Create(ctx, title)
	if err != nil {
		return "", err
	}
	if content != "" {
		if err := svc.BatchUpdate(ctx, docID, []Request{insertAtStart(content)}); err != nil {
			slog.WarnContext(ctx, "docs: failed to seed new document", "doc", docID, "err", err)
		}
	}
	return docID, nil
}

// EditOpen prepares the external document for editing and returns its edit
// URL. If the document is still empty the file's content is pushed into it
// first; a non-empty document is never overwritten.
func (b *Bridge) EditOpen(ctx context.Context, owner *identity.User, docID, content string) (string, error) {
	svc := b.factory(ctx, owner.AccessToken, owner.RefreshToken)
	doc, err := svc.Get(ctx, docID)
	if err != nil {
		return "", err
	}
	if doc.IsEmpty() && content != "" {
		if err := svc.BatchUpdate(ctx, docID, []Request{insertAtStart(content)}); err != nil {
			return "", err
		}
	}
	return EditURL(docID), nil
}

// SaveBack pulls the external document and returns its body flattened to
// HTML. Last write wins; concurrent external edits are not detected.
func (b *Bridge) SaveBack(ctx context.Context, owner *identity.User, docID string) (string, error) {
	svc := b.factory(ctx, owner.AccessToken, owner.RefreshToken)
	doc, err := svc.Get(ctx, docID)
	if err != nil {
		return "", err
	}
	var fetch ImageFetcher
	if b.fetchers != nil {
		fetch = b.fetchers(ctx, owner.AccessToken, owner.RefreshToken)
	}
	return FlattenHTML(ctx, doc, fetch), nil
}

// EditURL returns the external editor URL for a document.
func EditURL(docID string) string {
	return fmt.Sprintf("https://docs.google.com/document/d/%s/edit", docID)
}

// insertAtStart builds the batchUpdate op that places text at the beginning
// of the body. Index 1 is the first editable position.
func insertAtStart(text string) Request {
	return Request{InsertText: &InsertTextRequest{
		Text:     text,
		Location: &Location{Index: 1},
	}}
}

// HTTPImageFetcher adapts an authenticated http client into an ImageFetcher.
func HTTPImageFetcher(client *http.Client) ImageFetcher {
	return func(ctx context.Context, uri string) ([]byte, string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, "", err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, "", err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return nil, "", fmt.Errorf("image fetch returned %d", resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, 25<<20))
		if err != nil {
			return nil, "", err
		}
		return data, resp.Header.Get("Content-Type"), nil
	}
}
