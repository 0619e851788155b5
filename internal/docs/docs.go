// Package docs talks to the external Document Service and keeps plain-text
// files reconciled with their mirrored documents: provision on upload, push
// on edit-open, pull-and-flatten on save-back.
package docs

import "context"

// Document is the structured body returned by the Document Service.
type Document struct {
	DocumentID    string                  `json:"documentId"`
	Title         string                  `json:"title"`
	Body          *Body                   `json:"body,omitempty"`
	InlineObjects map[string]InlineObject `json:"inlineObjects,omitempty"`
}

// Body is the document content as a flat list of structural elements.
type Body struct {
	Content []StructuralElement `json:"content"`
}

// StructuralElement is one top-level block. Only paragraphs are flattened;
// tables and section breaks are ignored.
type StructuralElement struct {
	Paragraph *Paragraph `json:"paragraph,omitempty"`
}

// Paragraph is a run of inline elements ending in a newline.
type Paragraph struct {
	Elements []ParagraphElement `json:"elements"`
}

// ParagraphElement is either a styled text run or an inline object
// reference.
type ParagraphElement struct {
	TextRun             *TextRun             `json:"textRun,omitempty"`
	InlineObjectElement *InlineObjectElement `json:"inlineObjectElement,omitempty"`
}

// TextRun is a span of text sharing one style.
type TextRun struct {
	Content   string     `json:"content"`
	TextStyle *TextStyle `json:"textStyle,omitempty"`
}

// TextStyle carries the formatting the HTML flattener preserves.
type TextStyle struct {
	Bold          bool       `json:"bold,omitempty"`
	Italic        bool       `json:"italic,omitempty"`
	Underline     bool       `json:"underline,omitempty"`
	Strikethrough bool       `json:"strikethrough,omitempty"`
	FontSize      *Dimension `json:"fontSize,omitempty"`
}

// Dimension is a magnitude with a unit, typically PT.
type Dimension struct {
	Magnitude float64 `json:"magnitude"`
	Unit      string  `json:"unit"`
}

// InlineObjectElement points into the document's InlineObjects map.
type InlineObjectElement struct {
	InlineObjectID string `json:"inlineObjectId"`
}

// InlineObject holds an embedded object, in practice always an image.
type InlineObject struct {
	InlineObjectProperties InlineObjectProperties `json:"inlineObjectProperties"`
}

// InlineObjectProperties wraps the embedded object.
type InlineObjectProperties struct {
	EmbeddedObject EmbeddedObject `json:"embeddedObject"`
}

// EmbeddedObject describes the embedded content.
type EmbeddedObject struct {
	ImageProperties *ImageProperties `json:"imageProperties,omitempty"`
}

// ImageProperties carries the fetchable image URI.
type ImageProperties struct {
	ContentURI string `json:"contentUri"`
}

// Request is one batchUpdate operation. Exactly one field is set.
type Request struct {
	InsertText *InsertTextRequest `json:"insertText,omitempty"`
}

// InsertTextRequest inserts text at a location.
type InsertTextRequest struct {
	Text     string    `json:"text"`
	Location *Location `json:"location,omitempty"`
}

// Location is a zero-width position in the document body.
type Location struct {
	Index int64 `json:"index"`
}

// Service is the Document Service surface the bridge consumes.
type Service interface {
	// Create makes a new empty document and returns its id.
	Create(ctx context.Context, title string) (string, error)
	// Get fetches the full structured body.
	Get(ctx context.Context, documentID string) (*Document, error)
	// BatchUpdate applies edit operations.
	BatchUpdate(ctx context.Context, documentID string, requests []Request) error
}

// ClientFactory builds a Service authenticated as one user. A fresh client
// is constructed per request from the user's current credentials; there is
// no process-wide shared handle.
type ClientFactory func(ctx context.Context, accessToken, refreshToken string) Service

// IsEmpty reports whether the document holds only the single default empty
// paragraph a freshly created document starts with. The bridge only pushes
// local content into empty documents.
func (d *Document) IsEmpty() bool {
	if d.Body == nil || len(d.Body.Content) == 0 {
		return true
	}
	paragraphs := 0
	for _, el := range d.Body.Content {
		if el.Paragraph == nil {
			continue
		}
		paragraphs++
		if paragraphs > 1 {
			return false
		}
		for _, pe := range el.Paragraph.Elements {
			if pe.InlineObjectElement != nil {
				return false
			}
			if pe.TextRun != nil && pe.TextRun.Content != "" && pe.TextRun.Content != "\n" {
				return false
			}
		}
	}
	return true
}
