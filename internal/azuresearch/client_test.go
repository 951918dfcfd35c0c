package azuresearch_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/wiki-search-sync/internal/azuresearch"
	"github.com/DeafMist/wiki-search-sync/internal/models"
)

var docs = []models.SearchDocument{
	{
		ID:           "confluence-42",
		Title:        "Setup Guide",
		Content:      "Install it.",
		URL:          "https://acme.atlassian.net/wiki/spaces/X/42",
		LastModified: "2024-01-01T00:00:00Z",
	},
	{ID: "confluence-43", Title: "Bare page", Content: ""},
}

func newClient(t *testing.T, handler http.HandlerFunc) *azuresearch.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return azuresearch.New(server.URL+"/", "wiki", "secret-key", "", nil).WithHTTPClient(server.Client())
}

func TestUploadDocumentsRequest(t *testing.T) {
	var (
		gotMethod, gotPath, gotVersion, gotKey, gotType string
		gotBody                                         map[string][]map[string]any
	)
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotVersion = r.URL.Query().Get("api-version")
		gotKey = r.Header.Get("api-key")
		gotType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		_, _ = w.Write([]byte(`{"value":[
			{"key":"confluence-42","status":true,"errorMessage":null,"statusCode":201},
			{"key":"confluence-43","status":true,"errorMessage":null,"statusCode":200}]}`))
	})

	require.NoError(t, client.UploadDocuments(context.Background(), docs))

	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "/indexes/wiki/docs/index", gotPath)
	require.Equal(t, azuresearch.DefaultAPIVersion, gotVersion)
	require.Equal(t, "secret-key", gotKey)
	require.Equal(t, "application/json", gotType)

	require.Len(t, gotBody["value"], 2)
	first := gotBody["value"][0]
	require.Equal(t, "upload", first["@search.action"])
	require.Equal(t, "confluence-42", first["id"])
	require.Equal(t, "Install it.", first["content"])
	require.Equal(t, "https://acme.atlassian.net/wiki/spaces/X/42", first["url"])
	require.Equal(t, "2024-01-01T00:00:00Z", first["lastModified"])

	second := gotBody["value"][1]
	require.Equal(t, "", second["content"])
	require.NotContains(t, second, "url")
	require.NotContains(t, second, "lastModified")
}

func TestUploadDocumentsRejectedEnvelope(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"","message":"The request is invalid. Details: key field missing"}}`))
	})

	err := client.UploadDocuments(context.Background(), docs)
	require.True(t, models.IsIndexWriteFailed(err))

	var upstream *models.UpstreamError
	require.True(t, errors.As(err, &upstream))
	require.Equal(t, http.StatusBadRequest, upstream.StatusCode)
	require.Equal(t, "The request is invalid. Details: key field missing", upstream.Message)
	require.Contains(t, upstream.Body, "key field missing")
}

func TestUploadDocumentsPartialFailure(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = w.Write([]byte(`{"value":[
			{"key":"confluence-42","status":true,"errorMessage":null,"statusCode":201},
			{"key":"confluence-43","status":false,"errorMessage":"Document is too large","statusCode":400}]}`))
	})

	err := client.UploadDocuments(context.Background(), docs)
	require.True(t, models.IsIndexWriteFailed(err))

	var upstream *models.UpstreamError
	require.True(t, errors.As(err, &upstream))
	require.Equal(t, []models.Rejection{
		{Key: "confluence-43", StatusCode: 400, Message: "Document is too large"},
	}, upstream.Rejected)
}

func TestUploadDocumentsRejectionInsideOK(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":[{"key":"confluence-42","status":false,"errorMessage":"throttled","statusCode":503}]}`))
	})

	err := client.UploadDocuments(context.Background(), docs[:1])
	require.True(t, models.IsIndexWriteFailed(err))
	require.Contains(t, err.Error(), "throttled")
}

func TestSearch(t *testing.T) {
	var gotBody map[string]any
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/indexes/wiki/docs/search", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		_, _ = w.Write([]byte(`{"@odata.count": 7, "value": [
			{"@search.score": 1.5, "id": "confluence-42", "title": "Setup Guide", "content": "Install it."}]}`))
	})

	res, err := client.Search(context.Background(), models.SearchParams{Query: " install ", Size: 5, From: 10})
	require.NoError(t, err)

	require.Equal(t, "install", gotBody["search"])
	require.EqualValues(t, 5, gotBody["top"])
	require.EqualValues(t, 10, gotBody["skip"])
	require.Equal(t, true, gotBody["count"])

	require.EqualValues(t, 7, res.Total)
	require.Len(t, res.Items, 1)
	require.Equal(t, "Setup Guide", res.Items[0].Title)
}

func TestSearchEmptyQueryMatchesAll(t *testing.T) {
	var gotBody map[string]any
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		_, _ = w.Write([]byte(`{"@odata.count": 0, "value": []}`))
	})

	res, err := client.Search(context.Background(), models.SearchParams{})
	require.NoError(t, err)
	require.Equal(t, "*", gotBody["search"])
	require.Empty(t, res.Items)
}

func TestHealth(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "secret-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		require.Equal(t, "/indexes/wiki", r.URL.Path)
		_, _ = w.Write([]byte(`{"name":"wiki"}`))
	})
	require.NoError(t, client.Health(context.Background()))

	bad := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	require.Error(t, bad.Health(context.Background()))
}
