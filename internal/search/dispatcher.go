package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/visushop/storefront/internal/catalog"
	"github.com/visushop/storefront/pkg/config"
	"github.com/visushop/storefront/pkg/web"
)

// MaxImageBytes is the upload size limit, matching the backend's own cap.
const MaxImageBytes = 16 << 20

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/webp": {},
}

// Backend is the slice of the catalog client the dispatcher needs.
type Backend interface {
	SearchText(ctx context.Context, query string, limit int) (catalog.SearchResult, error)
	SearchImage(ctx context.Context, img catalog.ImageFile, topK int, minSimilarity float64) (catalog.SearchResult, error)
	SearchHybrid(ctx context.Context, img *catalog.ImageFile, query string, topK int, minSimilarity float64) (catalog.SearchResult, error)
}

// slots are the staleness sequences of one session: one monotonically
// increasing counter per logical search action.
type slots struct {
	text   atomic.Uint64
	image  atomic.Uint64
	hybrid atomic.Uint64
}

// Dispatcher validates queries client-side, forwards them to the backend and
// guards each logical slot (text, image, hybrid) against stale completions:
// every dispatch takes a monotonically increasing sequence number, and a
// completion that is no longer the latest for its slot is dropped with
// ErrSuperseded. Slots are kept per session, so only a newer request from the
// same client supersedes; concurrent sessions never race each other. Failures
// always carry an empty, non-nil result list.
type Dispatcher struct {
	backend Backend
	logger  *slog.Logger

	limit         int
	topK          int
	minSimilarity float64

	mu       sync.Mutex
	sessions map[string]*slots
}

// NewDispatcher creates a search dispatcher with the configured defaults.
func NewDispatcher(backend Backend, cfg config.SearchConfig, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		backend:       backend,
		logger:        logger.With("component", "search"),
		limit:         cfg.Limit,
		topK:          cfg.TopK,
		minSimilarity: cfg.MinSimilarity,
		sessions:      make(map[string]*slots),
	}
}

// slotsFor resolves the sequence slots of the session carried by the request
// context. Requests without a session share one fallback slot set.
func (d *Dispatcher) slotsFor(ctx context.Context) *slots {
	owner, _ := web.GetSessionID(ctx)
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[owner]
	if !ok {
		s = &slots{}
		d.sessions[owner] = s
	}
	return s
}

// SearchText dispatches a text query. Empty or whitespace-only queries are
// rejected with a ValidationError before any network call.
func (d *Dispatcher) SearchText(ctx context.Context, query string) (catalog.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return empty(), &ValidationError{Field: "q", Message: "search query must not be empty"}
	}

	s := d.slotsFor(ctx)
	seq := s.text.Add(1)
	result, err := d.backend.SearchText(ctx, query, d.limit)
	if s.text.Load() != seq {
		d.logger.DebugContext(ctx, "Discarding stale text search result", "seq", seq)
		return empty(), ErrSuperseded
	}
	if err != nil {
		return empty(), err
	}
	return result, nil
}

// SearchImage dispatches an image query (CBIR). The file is validated against
// the accepted MIME types and the size limit before any network call.
func (d *Dispatcher) SearchImage(ctx context.Context, img catalog.ImageFile) (catalog.SearchResult, error) {
	if err := validateImage(img); err != nil {
		return empty(), err
	}

	s := d.slotsFor(ctx)
	seq := s.image.Add(1)
	result, err := d.backend.SearchImage(ctx, img, d.topK, d.minSimilarity)
	if s.image.Load() != seq {
		d.logger.DebugContext(ctx, "Discarding stale image search result", "seq", seq)
		return empty(), ErrSuperseded
	}
	if err != nil {
		return empty(), err
	}
	return result, nil
}

// SearchHybrid dispatches a combined image+text query. At least one of the
// two parts must be present.
func (d *Dispatcher) SearchHybrid(ctx context.Context, img *catalog.ImageFile, query string) (catalog.SearchResult, error) {
	query = strings.TrimSpace(query)
	if img == nil && query == "" {
		return empty(), &ValidationError{Field: "query", Message: "hybrid search needs an image, a query, or both"}
	}
	if img != nil {
		if err := validateImage(*img); err != nil {
			return empty(), err
		}
	}

	s := d.slotsFor(ctx)
	seq := s.hybrid.Add(1)
	result, err := d.backend.SearchHybrid(ctx, img, query, d.topK, d.minSimilarity)
	if s.hybrid.Load() != seq {
		d.logger.DebugContext(ctx, "Discarding stale hybrid search result", "seq", seq)
		return empty(), ErrSuperseded
	}
	if err != nil {
		return empty(), err
	}
	return result, nil
}

func validateImage(img catalog.ImageFile) error {
	contentType := strings.ToLower(strings.TrimSpace(img.ContentType))
	if _, ok := allowedImageTypes[contentType]; !ok {
		return &ValidationError{
			Field:   "image",
			Message: fmt.Sprintf("unsupported image type %q; accepted formats: %s", img.ContentType, acceptedFormats()),
		}
	}
	if len(img.Data) == 0 {
		return &ValidationError{Field: "image", Message: "image file is empty"}
	}
	if len(img.Data) > MaxImageBytes {
		return &ValidationError{
			Field:   "image",
			Message: fmt.Sprintf("image exceeds the maximum size of %d MB", MaxImageBytes>>20),
		}
	}
	return nil
}

func acceptedFormats() string {
	formats := make([]string, 0, len(allowedImageTypes))
	for t := range allowedImageTypes {
		formats = append(formats, strings.TrimPrefix(t, "image/"))
	}
	sort.Strings(formats)
	return strings.Join(formats, ", ")
}

func empty() catalog.SearchResult {
	return catalog.SearchResult{Results: []catalog.Product{}}
}
