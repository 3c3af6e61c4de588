package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/dayline/dayline/internal/ingest"
)

const maxImportBodySize = 10 << 20 // 10MB
const maxURLFetchSize = 5 << 20    // 5MB

// ImportRequest brings external content into the note store. Type selects
// how content is interpreted: "text" (default) stores it as-is, "file"
// expects base64 (pdf, html, markdown, plain), "url" fetches the page.
type ImportRequest struct {
	Type     string   `json:"type"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	URL      string   `json:"url"`
	Filename string   `json:"filename"`
	Tags     []string `json:"tags"`
}

func handleImport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImportBodySize)
		defer r.Body.Close()

		var req ImportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" && req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one of content or url is required")
			return
		}

		var name string
		var data []byte
		switch {
		case req.Type == "url" && req.URL != "":
			ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
			defer cancel()

			httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid url: %v", err)
				return
			}
			resp, err := deps.HTTPClient.Do(httpReq)
			if err != nil {
				httpError(w, http.StatusBadGateway, "api_error", "failed to fetch url: %v", err)
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				httpError(w, http.StatusBadGateway, "api_error", "url returned status %d", resp.StatusCode)
				return
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxURLFetchSize))
			if err != nil {
				httpError(w, http.StatusBadGateway, "api_error", "failed to read url response: %v", err)
				return
			}
			name, data = urlDocName(req.URL), body

		case req.Type == "file" && req.Content != "":
			decoded, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
				return
			}
			name = req.Filename
			if name == "" {
				name = "upload"
			}
			data = decoded

		default:
			name, data = "note.txt", []byte(req.Content)
		}

		doc, err := ingest.ExtractText(name, data)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "could not extract text: %v", err)
			return
		}
		if req.Title != "" {
			doc.Title = req.Title
		}

		note, err := deps.Importer.ImportDocument(doc, req.Tags)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to import: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(note)
	}
}

// urlDocName picks a document name from a URL so format detection can use
// the path's extension.
func urlDocName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "page"
	}
	if base := path.Base(u.Path); base != "" && base != "." && base != "/" {
		return base
	}
	if u.Host != "" {
		return u.Host
	}
	return "page"
}
