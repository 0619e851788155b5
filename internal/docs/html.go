package docs

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"log/slog"
	"strings"
)

// ImageFetcher retrieves an embedded image by its content URI, returning the
// raw bytes and their MIME type.
type ImageFetcher func(ctx context.Context, uri string) ([]byte, string, error)

// FlattenHTML converts a structured document body into a single HTML string.
// Paragraphs become <p> blocks; bold, italic, underline, strikethrough and
// font size survive as inline tags; inline images are fetched and embedded
// as base64 data URIs. An image that cannot be fetched is dropped with a
// warning instead of failing the whole flatten.
func FlattenHTML(ctx context.Context, doc *Document, fetch ImageFetcher) string {
	if doc.Body == nil {
		return ""
	}
	var out strings.Builder
	for _, el := range doc.Body.Content {
		if el.Paragraph == nil {
			continue
		}
		out.WriteString("<p>")
		for _, pe := range el.Paragraph.Elements {
			switch {
			case pe.TextRun != nil:
				out.WriteString(renderTextRun(pe.TextRun))
			case pe.InlineObjectElement != nil:
				out.WriteString(renderImage(ctx, doc, pe.InlineObjectElement.InlineObjectID, fetch))
			}
		}
		out.WriteString("</p>")
	}
	return out.String()
}

func renderTextRun(run *TextRun) string {
	// Paragraph runs carry their terminating newline; the <p> block
	// already expresses the break.
	text := html.EscapeString(strings.TrimSuffix(run.Content, "\n"))
	if text == "" {
		return ""
	}
	if s := run.TextStyle; s != nil {
		if s.Bold {
			text = "<b>" + text + "</b>"
		}
		if s.Italic {
			text = "<i>" + text + "</i>"
		}
		if s.Underline {
			text = "<u>" + text + "</u>"
		}
		if s.Strikethrough {
			text = "<s>" + text + "</s>"
		}
		if s.FontSize != nil && s.FontSize.Magnitude > 0 {
			text = fmt.Sprintf(`<span style="font-size:%g%s">%s</span>`,
				s.FontSize.Magnitude, strings.ToLower(s.FontSize.Unit), text)
		}
	}
	return text
}

func renderImage(ctx context.Context, doc *Document, objectID string, fetch ImageFetcher) string {
	obj, ok := doc.InlineObjects[objectID]
	if !ok {
		return ""
	}
	props := obj.InlineObjectProperties.EmbeddedObject.ImageProperties
	if props == nil || props.ContentURI == "" {
		return ""
	}
	if fetch == nil {
		return ""
	}
	data, mimeType, err := fetch(ctx, props.ContentURI)
	if err != nil {
		slog.WarnContext(ctx, "docs: failed to inline image", "object", objectID, "err", err)
		return ""
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	return fmt.Sprintf(`<img src="data:%s;base64,%s">`, mimeType, base64.StdEncoding.EncodeToString(data))
}
