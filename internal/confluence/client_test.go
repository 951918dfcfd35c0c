package confluence_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/wiki-search-sync/internal/confluence"
	"github.com/DeafMist/wiki-search-sync/internal/models"
)

const childPagesJSON = `{
  "results": [
    {
      "id": "42",
      "title": "Setup Guide",
      "body": {"storage": {"value": "<p>Install <b>it</b>.</p>", "representation": "storage"}},
      "_links": {"webui": "/spaces/X/42"},
      "version": {"when": "2024-01-01T00:00:00Z", "number": 3}
    },
    {"id": "43", "title": "Bare page"}
  ],
  "size": 2
}`

func TestFetchChildPages(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(childPagesJSON))
	}))
	defer server.Close()

	client := confluence.New(server.URL+"/", "bot@acme.io", "token", "1835401234", 0, nil)
	client.HTTP = server.Client()

	pages, err := client.FetchChildPages(context.Background())
	require.NoError(t, err)

	require.Equal(t, "/wiki/rest/api/content/1835401234/child/page", gotPath)
	require.Equal(t, "expand=body.storage&limit=50", gotQuery)
	// base64("bot@acme.io:token")
	require.Equal(t, "Basic Ym90QGFjbWUuaW86dG9rZW4=", gotAuth)

	require.Len(t, pages, 2)
	require.Equal(t, "42", pages[0].ID)
	require.Equal(t, "<p>Install <b>it</b>.</p>", pages[0].Body.Storage.Value)
	require.Equal(t, "/spaces/X/42", pages[0].Links.WebUI)
	require.Equal(t, "2024-01-01T00:00:00Z", pages[0].Version.When)
	require.Equal(t, "", pages[1].Body.Storage.Value)
	require.Equal(t, "", pages[1].Links.WebUI)
}

func TestFetchChildPagesHonoursLimit(t *testing.T) {
	var gotLimit string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	client := confluence.New(server.URL, "u", "t", "1", 10, nil)
	client.HTTP = server.Client()

	pages, err := client.FetchChildPages(context.Background())
	require.NoError(t, err)
	require.Equal(t, "10", gotLimit)
	require.NotNil(t, pages)
	require.Empty(t, pages)
}

func TestFetchChildPagesMissingResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := confluence.New(server.URL, "u", "t", "1", 0, nil)
	client.HTTP = server.Client()

	pages, err := client.FetchChildPages(context.Background())
	require.NoError(t, err)
	require.Empty(t, pages)
}

func TestFetchChildPagesErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantInErr  string
	}{
		{
			name:       "unauthorized",
			status:     http.StatusUnauthorized,
			body:       `{"statusCode":401,"message":"Current user not permitted to use Confluence"}`,
			wantStatus: http.StatusUnauthorized,
			wantInErr:  "Current user not permitted",
		},
		{
			name:       "server error",
			status:     http.StatusBadGateway,
			body:       "upstream down",
			wantStatus: http.StatusBadGateway,
			wantInErr:  "upstream down",
		},
		{
			name:       "malformed body",
			status:     http.StatusOK,
			body:       `{"results": [`,
			wantStatus: http.StatusOK,
			wantInErr:  "decode response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := confluence.New(server.URL, "u", "t", "1", 0, nil)
			client.HTTP = server.Client()

			pages, err := client.FetchChildPages(context.Background())
			require.Nil(t, pages)
			require.True(t, models.IsSourceUnavailable(err))

			var upstream *models.UpstreamError
			require.True(t, errors.As(err, &upstream))
			require.Equal(t, tt.wantStatus, upstream.StatusCode)
			require.Contains(t, err.Error(), tt.wantInErr)
		})
	}
}

func TestFetchChildPagesNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := confluence.New(url, "u", "t", "1", 0, nil)

	_, err := client.FetchChildPages(context.Background())
	require.True(t, models.IsSourceUnavailable(err))
}
