package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/visushop/storefront/pkg/config"
)

// Client talks to the retrieval backend. Metadata calls use the short timeout;
// image-bearing calls use the long one, because feature extraction is slow.
// Only per-attempt timeouts are retried; other transport failures and non-2xx
// responses surface immediately.
type Client struct {
	baseURL      string
	hc           *http.Client
	logger       *slog.Logger
	metaTimeout  time.Duration
	imageTimeout time.Duration
	maxRetries   int
}

// NewClient creates a backend client from configuration.
func NewClient(cfg config.BackendConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		hc:           &http.Client{},
		logger:       logger.With("component", "catalog"),
		metaTimeout:  cfg.MetaTimeout,
		imageTimeout: cfg.ImageTimeout,
		maxRetries:   cfg.MaxRetries,
	}
}

// BaseURL returns the configured backend base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RandomProducts fetches a random catalog sample of up to count products.
func (c *Client) RandomProducts(ctx context.Context, count int) ([]Product, error) {
	u := fmt.Sprintf("%s/api/products/random?count=%d", c.baseURL, count)
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Products []Product `json:"products"`
		Count    int       `json:"count"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode random products response: %w", err)
	}
	if payload.Products == nil {
		return []Product{}, nil
	}
	return payload.Products, nil
}

// Categories fetches the category list, one representative image per category.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	body, err := c.get(ctx, c.baseURL+"/api/products/categories")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Categories []Category `json:"categories"`
		Count      int        `json:"count"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode categories response: %w", err)
	}
	if payload.Categories == nil {
		return []Category{}, nil
	}
	return payload.Categories, nil
}

// Products fetches a filtered catalog listing.
func (c *Client) Products(ctx context.Context, filters ProductFilters) (SearchResult, error) {
	params := url.Values{}
	if filters.Category != "" {
		params.Set("category", filters.Category)
	}
	if filters.MinPrice != "" {
		params.Set("min_price", filters.MinPrice)
	}
	if filters.MaxPrice != "" {
		params.Set("max_price", filters.MaxPrice)
	}
	if filters.Brand != "" {
		params.Set("brand", filters.Brand)
	}
	if filters.Color != "" {
		params.Set("color", filters.Color)
	}
	if filters.Limit > 0 {
		params.Set("limit", strconv.Itoa(filters.Limit))
	}
	if filters.Offset > 0 {
		params.Set("offset", strconv.Itoa(filters.Offset))
	}
	body, err := c.get(ctx, c.baseURL+"/api/products?"+params.Encode())
	if err != nil {
		return emptyResult(), err
	}
	return decodeSearchResult(body)
}

// ProductByID fetches a single product.
func (c *Client) ProductByID(ctx context.Context, id ID) (*Product, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/api/products/%s", c.baseURL, url.PathEscape(string(id))))
	if err != nil {
		return nil, err
	}
	var product Product
	if err := json.Unmarshal(body, &product); err != nil {
		return nil, fmt.Errorf("failed to decode product response: %w", err)
	}
	return &product, nil
}

// SearchText performs text-based retrieval. Limit is an upper bound on
// returned results, not a guarantee.
func (c *Client) SearchText(ctx context.Context, query string, limit int) (SearchResult, error) {
	u := fmt.Sprintf("%s/api/search/text?q=%s&limit=%d", c.baseURL, url.QueryEscape(query), limit)
	body, err := c.get(ctx, u)
	if err != nil {
		return emptyResult(), err
	}
	return decodeSearchResult(body)
}

// SearchImage performs image-based retrieval (CBIR). minSimilarity is a
// lower-bound relevance threshold; the backend is free to interpret or
// ignore it.
func (c *Client) SearchImage(ctx context.Context, img ImageFile, topK int, minSimilarity float64) (SearchResult, error) {
	u := fmt.Sprintf("%s/api/search/image?top_k=%d&min_similarity=%s",
		c.baseURL, topK, strconv.FormatFloat(minSimilarity, 'f', -1, 64))
	return c.postMultipart(ctx, u, &img, "")
}

// SearchHybrid performs combined image+text retrieval. Either part may be
// absent, not both.
func (c *Client) SearchHybrid(ctx context.Context, img *ImageFile, query string, topK int, minSimilarity float64) (SearchResult, error) {
	u := fmt.Sprintf("%s/api/search/hybrid?top_k=%d&min_similarity=%s",
		c.baseURL, topK, strconv.FormatFloat(minSimilarity, 'f', -1, 64))
	return c.postMultipart(ctx, u, img, query)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, nil, "", c.metaTimeout)
}

// postMultipart encodes the multipart form once and replays it on retry.
func (c *Client) postMultipart(ctx context.Context, url string, img *ImageFile, query string) (SearchResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if img != nil {
		part, err := mw.CreateFormFile("image", img.Name)
		if err != nil {
			return emptyResult(), fmt.Errorf("failed to build multipart request: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return emptyResult(), fmt.Errorf("failed to build multipart request: %w", err)
		}
	}
	if query != "" {
		if err := mw.WriteField("query", query); err != nil {
			return emptyResult(), fmt.Errorf("failed to build multipart request: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return emptyResult(), fmt.Errorf("failed to build multipart request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, url, buf.Bytes(), mw.FormDataContentType(), c.imageTimeout)
	if err != nil {
		return emptyResult(), err
	}
	return decodeSearchResult(body)
}

// do issues the request with a hard per-attempt timeout. A timed-out attempt
// is retried up to maxRetries times; any other failure is surfaced at once.
func (c *Client) do(ctx context.Context, method, url string, body []byte, contentType string, timeout time.Duration) ([]byte, error) {
	attempts := c.maxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		data, err := c.attempt(ctx, method, url, body, contentType, timeout)
		if err == nil {
			return data, nil
		}
		var timedOut bool
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			timedOut = true
		}
		if !timedOut {
			return nil, err
		}
		c.logger.WarnContext(ctx, "Backend request timed out",
			"url", url, "attempt", attempt, "max_attempts", attempts)
	}
	return nil, &TimeoutError{URL: url, Attempts: attempts}
}

func (c *Client) attempt(ctx context.Context, method, url string, body []byte, contentType string, timeout time.Duration) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &NetworkError{URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, data)
	}
	return data, nil
}

func decodeSearchResult(body []byte) (SearchResult, error) {
	var result SearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return emptyResult(), fmt.Errorf("failed to decode search response: %w", err)
	}
	if result.Results == nil {
		result.Results = []Product{}
	}
	if result.Count == 0 {
		result.Count = len(result.Results)
	}
	return result, nil
}

func emptyResult() SearchResult {
	return SearchResult{Results: []Product{}}
}
