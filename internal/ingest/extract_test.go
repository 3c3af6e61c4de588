package ingest

import (
	"errors"
	"strings"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
		want Format
	}{
		{"pdf extension", "report.pdf", "", FormatPDF},
		{"html extension", "page.html", "", FormatHTML},
		{"htm extension", "page.htm", "", FormatHTML},
		{"markdown extension", "notes.md", "", FormatText},
		{"text extension", "notes.txt", "", FormatText},
		{"pdf magic bytes", "download", "%PDF-1.7 garbage", FormatPDF},
		{"html doctype sniff", "download", "  <!DOCTYPE html><html><body>x</body></html>", FormatHTML},
		{"html tag sniff", "download", "<html lang=\"en\"><body>x</body></html>", FormatHTML},
		{"plain fallback", "download", "just some words", FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectFormat(tt.file, []byte(tt.data))
			if got != tt.want {
				t.Errorf("DetectFormat(%q) = %q, want %q", tt.file, got, tt.want)
			}
		})
	}
}

func TestExtractPlainText(t *testing.T) {
	data := "Grocery run\n\nmilk, eggs, coffee\n"
	doc, err := ExtractText("shopping.txt", []byte(data))
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if doc.Title != "Grocery run" {
		t.Errorf("Title = %q, want %q", doc.Title, "Grocery run")
	}
	if doc.Text != "Grocery run\n\nmilk, eggs, coffee" {
		t.Errorf("Text = %q", doc.Text)
	}
}

func TestExtractTitleFallsBackToFilename(t *testing.T) {
	long := strings.Repeat("x", 200)
	doc, err := ExtractText("meeting-notes.txt", []byte(long))
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if doc.Title != "meeting-notes" {
		t.Errorf("Title = %q, want %q", doc.Title, "meeting-notes")
	}
}

func TestExtractHTML(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head>
  <title>Trip planning</title>
  <style>body { color: red }</style>
  <script>alert("nope")</script>
</head>
<body>
  <h1>Itinerary</h1>
  <p>Fly out on Friday.</p>
  <p>Back on <b>Sunday</b> evening.</p>
</body>
</html>`

	doc, err := ExtractText("trip.html", []byte(page))
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if doc.Title != "Trip planning" {
		t.Errorf("Title = %q, want %q", doc.Title, "Trip planning")
	}
	if strings.Contains(doc.Text, "alert") {
		t.Errorf("script content leaked into text: %q", doc.Text)
	}
	if strings.Contains(doc.Text, "color") {
		t.Errorf("style content leaked into text: %q", doc.Text)
	}
	for _, want := range []string{"Itinerary", "Fly out on Friday.", "Back on Sunday evening."} {
		if !strings.Contains(doc.Text, want) {
			t.Errorf("text missing %q; got %q", want, doc.Text)
		}
	}
}

func TestExtractHTMLSniffedWithoutExtension(t *testing.T) {
	page := `<html><head><title>Fetched page</title></head><body><p>hello there</p></body></html>`
	doc, err := ExtractText("https-fetch", []byte(page))
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if doc.Title != "Fetched page" {
		t.Errorf("Title = %q, want %q", doc.Title, "Fetched page")
	}
	if !strings.Contains(doc.Text, "hello there") {
		t.Errorf("Text = %q, want it to contain %q", doc.Text, "hello there")
	}
}

func TestExtractHTMLWithoutTitleTag(t *testing.T) {
	page := `<html><body><h1>Heading only</h1><p>body text</p></body></html>`
	doc, err := ExtractText("page.html", []byte(page))
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if doc.Title != "Heading only" {
		t.Errorf("Title = %q, want %q", doc.Title, "Heading only")
	}
}

func TestExtractMalformedPDF(t *testing.T) {
	if _, err := ExtractText("broken.pdf", []byte("%PDF-1.4 not actually a pdf")); err == nil {
		t.Fatal("expected error for malformed pdf, got nil")
	}
}

func TestExtractEmptyDocument(t *testing.T) {
	if _, err := ExtractText("empty.txt", []byte("   \n\t\n  ")); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("err = %v, want ErrEmptyDocument", err)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	in := "  first   line \n\n\n\n second\tline  \n\n"
	want := "first line\n\nsecond line"
	if got := collapseWhitespace(in); got != want {
		t.Errorf("collapseWhitespace = %q, want %q", got, want)
	}
}
