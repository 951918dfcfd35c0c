package confluence

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/DeafMist/wiki-search-sync/internal/models"
)

// DefaultPageLimit is the number of child pages requested when none is configured.
const DefaultPageLimit = 50

// maxErrorBody bounds how much of an upstream error payload is kept for diagnostics.
const maxErrorBody = 4096

// Client reads child pages of one parent page from the Confluence REST API.
type Client struct {
	BaseURL      string
	Username     string
	APIToken     string
	ParentPageID string
	Limit        int
	HTTP         *http.Client
	Logger       *slog.Logger
}

// New returns a client for the given base URL (scheme and host, e.g. https://acme.atlassian.net).
func New(baseURL, username, apiToken, parentPageID string, limit int, logger *slog.Logger) *Client {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Username:     username,
		APIToken:     apiToken,
		ParentPageID: parentPageID,
		Limit:        limit,
		HTTP:         http.DefaultClient,
		Logger:       logger,
	}
}

type childPagesResponse struct {
	Results []models.RawPage `json:"results"`
}

// FetchChildPages returns the first page of children of the parent page with bodies inline.
// Children beyond Limit are not returned.
func (c *Client) FetchChildPages(ctx context.Context) ([]models.RawPage, error) {
	endpoint := c.childPagesURL()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, unavailable(0, fmt.Sprintf("build request: %v", err), "")
	}
	req.Header.Set("Authorization", "Basic "+basicAuth(c.Username, c.APIToken))
	req.Header.Set("Accept", "application/json")

	if c.Logger != nil {
		c.Logger.Debug("fetching child pages", slog.String("url", endpoint))
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, unavailable(0, err.Error(), "")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, unavailable(resp.StatusCode, upstreamMessage(body), strings.TrimSpace(string(body)))
	}

	var parsed childPagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, unavailable(resp.StatusCode, fmt.Sprintf("decode response: %v", err), "")
	}

	if parsed.Results == nil {
		return []models.RawPage{}, nil
	}
	return parsed.Results, nil
}

func (c *Client) childPagesURL() string {
	q := url.Values{}
	q.Set("expand", "body.storage")
	q.Set("limit", strconv.Itoa(c.Limit))
	return c.BaseURL + "/wiki/rest/api/content/" + url.PathEscape(c.ParentPageID) + "/child/page?" + q.Encode()
}

func basicAuth(username, token string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + token))
}

func unavailable(status int, message, body string) error {
	return &models.UpstreamError{
		Kind:       models.ErrSourceUnavailable,
		Op:         "fetch child pages",
		StatusCode: status,
		Message:    message,
		Body:       body,
	}
}

// upstreamMessage pulls the "message" field Confluence puts in its error payloads.
func upstreamMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Message
}
