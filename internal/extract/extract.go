// Package extract defines the pluggable content-extraction capability the
// crawler delegates to, plus the built-in HTML implementation.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/pkg/types"
)

// ErrNoExtractor is returned when no extractor is registered for a kind.
var ErrNoExtractor = errors.New("no extractor registered for resource kind")

// Extractor turns raw fetched content into plain text for indexing.
// Implementations must not retain raw after returning.
type Extractor interface {
	Extract(ctx context.Context, raw []byte) (string, error)
}

// Registry dispatches extraction by resource kind so PDF/DOCX parsers can be
// injected without the traversal engine knowing about them.
type Registry struct {
	extractors map[types.ResourceKind]Extractor
}

// NewRegistry builds a registry with the built-in HTML extractor installed.
// Document kinds stay unregistered until a parser is injected; extracting an
// unregistered kind reports ErrNoExtractor so callers can degrade explicitly.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[types.ResourceKind]Extractor)}
	r.Register(types.KindHTML, NewHTMLExtractor())
	return r
}

// Register installs or replaces the extractor for a kind.
func (r *Registry) Register(kind types.ResourceKind, e Extractor) {
	r.extractors[kind] = e
}

// Extract dispatches to the extractor registered for kind.
func (r *Registry) Extract(ctx context.Context, kind types.ResourceKind, raw []byte) (string, error) {
	e, ok := r.extractors[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoExtractor, kind)
	}
	return e.Extract(ctx, raw)
}
