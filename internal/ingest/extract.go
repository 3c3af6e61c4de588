package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// ErrEmptyDocument is returned when extraction yields no usable text.
var ErrEmptyDocument = errors.New("document has no extractable text")

const maxTitleLen = 120

// Document is extracted text ready to be stored as a note.
type Document struct {
	Title string
	Text  string
}

// Format identifies how source bytes should be interpreted.
type Format string

const (
	FormatText Format = "text"
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// DetectFormat picks an extraction format from the file name extension,
// falling back to content sniffing for extensionless sources such as
// fetched URLs.
func DetectFormat(name string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF
	case ".html", ".htm":
		return FormatHTML
	case ".txt", ".md", ".markdown":
		return FormatText
	}

	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return FormatPDF
	}
	head := bytes.ToLower(bytes.TrimSpace(data))
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.Contains(head, []byte("<!doctype html")) || bytes.Contains(head, []byte("<html")) {
		return FormatHTML
	}
	return FormatText
}

// ExtractText converts raw source bytes into a titled plain-text document.
// The name is used for format detection and as a title fallback.
func ExtractText(name string, data []byte) (Document, error) {
	var doc Document
	var err error

	switch DetectFormat(name, data) {
	case FormatPDF:
		doc.Text, err = pdfToText(data)
		if err != nil {
			return Document{}, err
		}
	case FormatHTML:
		doc.Title, doc.Text, err = htmlToText(data)
		if err != nil {
			return Document{}, err
		}
	default:
		doc.Text = string(data)
	}

	doc.Text = collapseWhitespace(doc.Text)
	if doc.Text == "" {
		return Document{}, ErrEmptyDocument
	}
	if doc.Title == "" {
		doc.Title = deriveTitle(name, doc.Text)
	}
	return doc, nil
}

func pdfToText(data []byte) (text string, err error) {
	// The pdf package panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parsing pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return string(b), nil
}

// blockTags are elements whose end implies a line break in the extracted text.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "blockquote": true, "pre": true,
	"ul": true, "ol": true, "table": true,
}

func htmlToText(data []byte) (title, text string, err error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("parsing html: %w", err)
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if title == "" {
					title = strings.TrimSpace(nodeText(n))
				}
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			b.WriteString("\n")
		}
	}
	walk(root)

	return title, b.String(), nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		} else {
			b.WriteString(nodeText(c))
		}
	}
	return b.String()
}

// collapseWhitespace trims each line and squeezes blank-line runs down to
// a single separator so extracted text reads like hand-written notes.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func deriveTitle(name, text string) string {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line != "" && utf8.RuneCountInString(line) <= maxTitleLen {
		return line
	}
	base := filepath.Base(name)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
