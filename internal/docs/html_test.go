package docs

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func para(elements ...ParagraphElement) StructuralElement {
	return StructuralElement{Paragraph: &Paragraph{Elements: elements}}
}

func run(text string, style *TextStyle) ParagraphElement {
	return ParagraphElement{TextRun: &TextRun{Content: text, TextStyle: style}}
}

func TestFlattenHTML(t *testing.T) {
	t.Run("styles", func(t *testing.T) {
		doc := &Document{Body: &Body{Content: []StructuralElement{
			para(
				run("bold", &TextStyle{Bold: true}),
				run(" and ", nil),
				run("slanted", &TextStyle{Italic: true}),
			),
			para(run("under", &TextStyle{Underline: true})),
			para(run("gone", &TextStyle{Strikethrough: true})),
			para(run("big", &TextStyle{FontSize: &Dimension{Magnitude: 18, Unit: "PT"}})),
		}}}
		got := FlattenHTML(t.Context(), doc, nil)
		want := `<p><b>bold</b> and <i>slanted</i></p>` +
			`<p><u>under</u></p>` +
			`<p><s>gone</s></p>` +
			`<p><span style="font-size:18pt">big</span></p>`
		if got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	})

	t.Run("escapes_markup", func(t *testing.T) {
		doc := &Document{Body: &Body{Content: []StructuralElement{
			para(run("<script>alert(1)</script>\n", nil)),
		}}}
		got := FlattenHTML(t.Context(), doc, nil)
		if strings.Contains(got, "<script>") {
			t.Errorf("Document text not escaped: %q", got)
		}
	})

	t.Run("inlines_images", func(t *testing.T) {
		doc := &Document{
			Body: &Body{Content: []StructuralElement{
				para(ParagraphElement{InlineObjectElement: &InlineObjectElement{InlineObjectID: "obj1"}}),
			}},
			InlineObjects: map[string]InlineObject{
				"obj1": {InlineObjectProperties: InlineObjectProperties{
					EmbeddedObject: EmbeddedObject{ImageProperties: &ImageProperties{ContentURI: "https://img.example/p.png"}},
				}},
			},
		}
		fetch := func(_ context.Context, uri string) ([]byte, string, error) {
			if uri != "https://img.example/p.png" {
				t.Errorf("Fetched wrong URI: %s", uri)
			}
			return []byte{1, 2, 3}, "image/png", nil
		}
		got := FlattenHTML(t.Context(), doc, fetch)
		want := `<p><img src="data:image/png;base64,` + base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) + `"></p>`
		if got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	})

	t.Run("dropped_image_on_fetch_failure", func(t *testing.T) {
		doc := &Document{
			Body: &Body{Content: []StructuralElement{
				para(
					ParagraphElement{InlineObjectElement: &InlineObjectElement{InlineObjectID: "obj1"}},
					run("text survives\n", nil),
				),
			}},
			InlineObjects: map[string]InlineObject{
				"obj1": {InlineObjectProperties: InlineObjectProperties{
					EmbeddedObject: EmbeddedObject{ImageProperties: &ImageProperties{ContentURI: "https://img.example/gone.png"}},
				}},
			},
		}
		fetch := func(context.Context, string) ([]byte, string, error) {
			return nil, "", errors.New("unreachable")
		}
		if got := FlattenHTML(t.Context(), doc, fetch); got != "<p>text survives</p>" {
			t.Errorf("Expected the text to survive a failed image fetch, got %q", got)
		}
	})

	t.Run("skips_non_paragraphs", func(t *testing.T) {
		doc := &Document{Body: &Body{Content: []StructuralElement{
			{},
			para(run("only\n", nil)),
		}}}
		if got := FlattenHTML(t.Context(), doc, nil); got != "<p>only</p>" {
			t.Errorf("Expected %q, got %q", "<p>only</p>", got)
		}
	})
}
