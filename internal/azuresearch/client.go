package azuresearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	applog "github.com/DeafMist/wiki-search-sync/internal/logger"
	"github.com/DeafMist/wiki-search-sync/internal/models"
)

// DefaultAPIVersion is the REST api-version used when none is configured.
const DefaultAPIVersion = "2023-07-01-Preview"

// ActionUpload inserts a document or replaces the one sharing its key.
const ActionUpload = "upload"

const maxResponseBody = 1 << 20

// Client talks to one index of an Azure AI Search service over REST.
type Client struct {
	endpoint   string
	index      string
	apiKey     string
	apiVersion string
	http       *http.Client
	log        *slog.Logger
}

// New instantiates the client. endpoint is the service URL, e.g. https://acme.search.windows.net.
func New(endpoint, index, apiKey, apiVersion string, logger *slog.Logger) *Client {
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		index:      index,
		apiKey:     apiKey,
		apiVersion: apiVersion,
		http:       http.DefaultClient,
		log:        logger,
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

type indexAction struct {
	Action string `json:"@search.action"`
	models.SearchDocument
}

type indexBatch struct {
	Value []indexAction `json:"value"`
}

type indexResult struct {
	Key          string  `json:"key"`
	Status       bool    `json:"status"`
	ErrorMessage *string `json:"errorMessage"`
	StatusCode   int     `json:"statusCode"`
}

// UploadDocuments submits docs as a single upload batch. Any document rejected by
// the service, even inside a 200 or 207 envelope, fails the whole call.
func (c *Client) UploadDocuments(ctx context.Context, docs []models.SearchDocument) error {
	batch := indexBatch{Value: make([]indexAction, 0, len(docs))}
	for _, doc := range docs {
		batch.Value = append(batch.Value, indexAction{Action: ActionUpload, SearchDocument: doc})
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	res, err := c.do(ctx, "docs/index", payload)
	if err != nil {
		return writeFailed(0, err.Error(), "", nil)
	}
	defer func() { _ = res.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return writeFailed(res.StatusCode, upstreamMessage(body), strings.TrimSpace(string(body)), nil)
	}

	var parsed struct {
		Value []indexResult `json:"value"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		if res.StatusCode == http.StatusMultiStatus {
			return writeFailed(res.StatusCode, "partial failure with unreadable per-document status", strings.TrimSpace(string(body)), nil)
		}
		c.log.Warn("index response not parsed, trusting status", slog.Int("status", res.StatusCode), slog.Any("err", err))
		return nil
	}

	var rejected []models.Rejection
	for _, r := range parsed.Value {
		if r.Status {
			continue
		}
		msg := ""
		if r.ErrorMessage != nil {
			msg = *r.ErrorMessage
		}
		rejected = append(rejected, models.Rejection{Key: r.Key, StatusCode: r.StatusCode, Message: msg})
	}
	if len(rejected) > 0 || res.StatusCode == http.StatusMultiStatus {
		return writeFailed(res.StatusCode, "", "", rejected)
	}

	c.log.Debug("batch accepted", slog.Int("documents", len(docs)), slog.String("index", c.index))
	return nil
}

// Search runs a simple full-text query over the index.
func (c *Client) Search(ctx context.Context, params models.SearchParams) (*models.SearchResult, error) {
	if params.Size <= 0 {
		params.Size = 10
	}
	if params.From < 0 {
		params.From = 0
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		query = "*"
	}

	payload, err := json.Marshal(map[string]any{
		"search": query,
		"top":    params.Size,
		"skip":   params.From,
		"count":  true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.do(ctx, "docs/search", payload)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
		return nil, fmt.Errorf("search failed: status %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Count int64                   `json:"@odata.count"`
		Value []models.SearchDocument `json:"value"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if parsed.Value == nil {
		parsed.Value = []models.SearchDocument{}
	}

	return &models.SearchResult{Total: parsed.Count, Items: parsed.Value}, nil
}

// Health checks that the index exists and the key is accepted.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.indexURL(""), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
		return fmt.Errorf("index health bad: status %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.indexURL(path), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)
	return c.http.Do(req)
}

func (c *Client) indexURL(path string) string {
	u := c.endpoint + "/indexes/" + url.PathEscape(c.index)
	if path != "" {
		u += "/" + path
	}
	return u + "?api-version=" + url.QueryEscape(c.apiVersion)
}

func writeFailed(status int, message, body string, rejected []models.Rejection) error {
	return &models.UpstreamError{
		Kind:       models.ErrIndexWriteFailed,
		Op:         "upload documents",
		StatusCode: status,
		Message:    message,
		Body:       body,
		Rejected:   rejected,
	}
}

// upstreamMessage extracts error.message from an OData error payload.
func upstreamMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error.Message
}
