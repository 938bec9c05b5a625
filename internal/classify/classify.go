// Package classify decides how a crawl target should be fetched based on its
// URL and, once available, its response headers.
package classify

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/pkg/types"
)

// Extensions that are never fetched: archives, executables, and images.
var skipExtensions = []string{
	".zip", ".rar", ".tar", ".tar.gz", ".7z", ".gz", ".xz", ".bz2", ".iso",
	".exe", ".bin", ".msi",
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".svg", ".webp",
}

var docExtensions = map[string]types.ResourceKind{
	".pdf":  types.KindPDF,
	".docx": types.KindDOCX,
	".doc":  types.KindDOC,
}

// ByURL performs the cheap URL-only pre-check that runs before any network
// call. Known-binary extensions map to KindSkipped so their bodies are never
// fetched; known document extensions map to their type; everything else
// defaults to HTML pending header refinement.
func ByURL(u *url.URL) types.ResourceKind {
	if u == nil {
		return types.KindHTML
	}
	lower := strings.ToLower(u.Path)
	for _, ext := range skipExtensions {
		if strings.HasSuffix(lower, ext) {
			return types.KindSkipped
		}
	}
	if kind, ok := docExtensions[path.Ext(lower)]; ok {
		return kind
	}
	return types.KindHTML
}

// Refine applies the header-informed second pass once a response has
// arrived. A Content-Type marker overrides the extension-based guess, so a
// .php URL serving a PDF is treated as a PDF. Skipped targets are never
// refined because no response exists for them.
func Refine(kind types.ResourceKind, header http.Header) types.ResourceKind {
	if kind == types.KindSkipped || header == nil {
		return kind
	}
	ctype := strings.ToLower(header.Get("Content-Type"))
	switch {
	case strings.Contains(ctype, "pdf"):
		return types.KindPDF
	case strings.Contains(ctype, "word"), strings.Contains(ctype, "officedocument"):
		return types.KindDOCX
	case strings.Contains(ctype, "html"):
		return types.KindHTML
	}
	return kind
}
