package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	applog "github.com/DeafMist/wiki-search-sync/internal/logger"
	"github.com/DeafMist/wiki-search-sync/internal/models"
)

// Client wraps go-elasticsearch with the operations the sync and the API need.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// New instantiates the Elasticsearch client.
func New(addr, index string, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = applog.Discard()
	}

	return &Client{es: es, index: index, log: logger}, nil
}

type bulkItem struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// UploadDocuments writes docs with a single _bulk request of index actions keyed
// by document ID, so a known ID is replaced in place.
func (c *Client) UploadDocuments(ctx context.Context, docs []models.SearchDocument) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]any{"index": map[string]any{"_id": doc.ID}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("marshal bulk meta: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("marshal doc: %w", err)
		}
	}

	req := esapi.BulkRequest{
		Index:   c.index,
		Body:    bytes.NewReader(buf.Bytes()),
		Refresh: "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return writeFailed(0, err.Error(), "", nil)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return writeFailed(res.StatusCode, "", strings.TrimSpace(string(body)), nil)
	}

	var parsed struct {
		Errors bool                  `json:"errors"`
		Items  []map[string]bulkItem `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return writeFailed(res.StatusCode, fmt.Sprintf("decode bulk response: %v", err), "", nil)
	}
	if !parsed.Errors {
		c.log.Debug("bulk accepted", slog.Int("documents", len(docs)), slog.String("index", c.index))
		return nil
	}

	var rejected []models.Rejection
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Error == nil {
				continue
			}
			rejected = append(rejected, models.Rejection{
				Key:        result.ID,
				StatusCode: result.Status,
				Message:    result.Error.Type + ": " + result.Error.Reason,
			})
		}
	}
	return writeFailed(res.StatusCode, "", "", rejected)
}

// Search executes a multi_match query over title and content.
func (c *Client) Search(ctx context.Context, params models.SearchParams) (*models.SearchResult, error) {
	if params.Size <= 0 {
		params.Size = 10
	}
	if params.Size > 200 {
		params.Size = 200
	}
	if params.From < 0 {
		params.From = 0
	}

	query := map[string]any{"match_all": map[string]any{}}
	if q := strings.TrimSpace(params.Query); q != "" {
		query = map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"title^2", "content"},
			},
		}
	}

	body := map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query":            query,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.SearchDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.SearchDocument, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}

	return &models.SearchResult{
		Total: parsed.Hits.Total.Value,
		Items: items,
	}, nil
}

// Health pings Elasticsearch to ensure connectivity.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

func writeFailed(status int, message, body string, rejected []models.Rejection) error {
	return &models.UpstreamError{
		Kind:       models.ErrIndexWriteFailed,
		Op:         "bulk index",
		StatusCode: status,
		Message:    message,
		Body:       body,
		Rejected:   rejected,
	}
}
