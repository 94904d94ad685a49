package rest

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/visushop/storefront/internal/catalog"
	"github.com/visushop/storefront/internal/search"
	"github.com/visushop/storefront/pkg/web"
)

// searchResponse is the shape of every search endpoint response. Count is the
// size of the whole filtered set, not of the current page. The client is
// expected to request page 1 again whenever it changes a filter or the sort
// key.
type searchResponse struct {
	Results    []catalog.Product `json:"results"`
	Count      int               `json:"count"`
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
	QueryTime  *float64          `json:"query_time,omitempty"`
}

// SearchText runs a text query through the backend, then the local
// filter/sort/paginate pipeline.
func (h *Handler) SearchText(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	page, ok := web.ParseOptionalGt(r, w, mLogger, "page", 0, 1)
	if !ok {
		return
	}
	result, err := h.searcher.SearchText(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.respondSearchError(w, r, mLogger, err)
		return
	}
	h.respondSearch(w, mLogger, result, search.ModeText, filterStateFrom(r), page)
}

// SearchImage runs an image query (CBIR). The uploaded file is validated
// before any call to the backend is made.
func (h *Handler) SearchImage(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	page, ok := web.ParseOptionalGt(r, w, mLogger, "page", 0, 1)
	if !ok {
		return
	}
	img, ok := h.readImagePart(w, r, mLogger, true)
	if !ok {
		return
	}
	result, err := h.searcher.SearchImage(r.Context(), *img)
	if err != nil {
		h.respondSearchError(w, r, mLogger, err)
		return
	}
	h.respondSearch(w, mLogger, result, search.ModeImage, filterStateFrom(r), page)
}

// SearchHybrid runs a combined image+text query.
func (h *Handler) SearchHybrid(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	page, ok := web.ParseOptionalGt(r, w, mLogger, "page", 0, 1)
	if !ok {
		return
	}
	img, ok := h.readImagePart(w, r, mLogger, false)
	if !ok {
		return
	}
	query := r.FormValue("query")
	result, err := h.searcher.SearchHybrid(r.Context(), img, query)
	if err != nil {
		h.respondSearchError(w, r, mLogger, err)
		return
	}
	h.respondSearch(w, mLogger, result, search.ModeHybrid, filterStateFrom(r), page)
}

// respondSearch applies the pipeline and writes the paginated response. The
// pipeline never fails: eliminated constraints degrade to an empty page.
func (h *Handler) respondSearch(w http.ResponseWriter, logger *slog.Logger, result catalog.SearchResult, mode search.Mode, f search.FilterState, page int) {
	filtered := search.Apply(result.Results, mode, f)
	visible, totalPages := search.Paginate(filtered, page, h.pageSize)
	h.decorate(visible)
	web.RespondJSON(w, logger, http.StatusOK, searchResponse{
		Results:    visible,
		Count:      len(filtered),
		Page:       page,
		TotalPages: totalPages,
		QueryTime:  result.QueryTime,
	})
}

// respondSearchError maps dispatcher errors: validation failures are client
// errors and never reached the network; a superseded search tells the client
// its response is already stale.
func (h *Handler) respondSearchError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var validationErr *search.ValidationError
	if errors.As(err, &validationErr) {
		logger.WarnContext(r.Context(), "Search rejected by validation", "field", validationErr.Field, "error", validationErr.Message)
		web.RespondError(w, logger, http.StatusBadRequest, validationErr.Message)
		return
	}
	if errors.Is(err, search.ErrSuperseded) {
		logger.DebugContext(r.Context(), "Search result superseded by a newer request")
		web.RespondError(w, logger, http.StatusConflict, "Search superseded by a newer request")
		return
	}
	h.respondBackendError(w, r, logger, err, "Search failed")
}

// readImagePart extracts the multipart "image" field. The read is capped just
// above the upload limit so an oversized file is detected by validation
// instead of buffering without bound.
func (h *Handler) readImagePart(w http.ResponseWriter, r *http.Request, logger *slog.Logger, required bool) (*catalog.ImageFile, bool) {
	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) && !required {
			return nil, true
		}
		logger.WarnContext(r.Context(), "Missing or unreadable image upload", "error", err)
		web.RespondError(w, logger, http.StatusBadRequest, "No image provided")
		return nil, false
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, search.MaxImageBytes+1))
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to read image upload", "error", err)
		web.RespondError(w, logger, http.StatusBadRequest, "Failed to read image upload")
		return nil, false
	}
	return &catalog.ImageFile{
		Name:        header.Filename,
		ContentType: imageContentType(header, data),
		Data:        data,
	}, true
}

// imageContentType prefers the declared part header and falls back to
// sniffing the payload when the client did not declare one.
func imageContentType(header *multipart.FileHeader, data []byte) string {
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		return http.DetectContentType(data)
	}
	return contentType
}

// filterStateFrom reads the pipeline constraints off the query string. Price
// bounds stay raw text; the pipeline treats non-numeric bounds as absent.
func filterStateFrom(r *http.Request) search.FilterState {
	q := r.URL.Query()
	return search.FilterState{
		Category: q.Get("category"),
		Color:    q.Get("color"),
		MinPrice: q.Get("min_price"),
		MaxPrice: q.Get("max_price"),
		Sort:     search.ParseSortKey(q.Get("sort")),
	}
}
