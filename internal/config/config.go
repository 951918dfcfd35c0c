package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DeafMist/wiki-search-sync/internal/models"
)

// Index backends.
const (
	BackendAzure         = "azure"
	BackendElasticsearch = "elasticsearch"
)

// Content sanitizers.
const (
	SanitizerTags   = "tags"
	SanitizerTextV2 = "text-v2"
)

// Index contains the search index parameters shared by every service.
type Index struct {
	Backend            string
	AzureEndpoint      string
	AzureIndex         string
	AzureKey           string
	AzureAPIVersion    string
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Confluence holds the source reader connection parameters.
type Confluence struct {
	Domain       string
	BaseURL      string
	Username     string
	APIToken     string
	ParentPageID string
	PageLimit    int
}

// Sync holds configuration for the Confluence -> index sync job.
type Sync struct {
	Index
	Confluence
	Sanitizer    string
	KafkaBrokers []string
	KafkaTopic   string
	Interval     time.Duration
	RunTimeout   time.Duration
}

// API describes HTTP-layer configuration.
type API struct {
	Index
	BindAddr    string
	DefaultPage int
	MaxPage     int
}

// LoadSync builds a Sync config from environment variables.
func LoadSync() (*Sync, error) {
	c := &Sync{
		Index: loadIndex(),
		Confluence: Confluence{
			Domain:       getEnv("CONFLUENCE_DOMAIN", ""),
			BaseURL:      getEnv("CONFLUENCE_BASE_URL", ""),
			Username:     getEnv("CONFLUENCE_USERNAME", ""),
			APIToken:     getEnv("CONFLUENCE_API_TOKEN", ""),
			ParentPageID: getEnv("CONFLUENCE_PARENT_PAGE_ID", ""),
			PageLimit:    getInt("CONFLUENCE_PAGE_LIMIT", 50),
		},
		Sanitizer:    strings.ToLower(getEnv("CONTENT_SANITIZER", SanitizerTags)),
		KafkaBrokers: splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "wiki_sync_runs"),
		Interval:     getDuration("SYNC_INTERVAL", "0s"),
		RunTimeout:   getDuration("SYNC_RUN_TIMEOUT", "2m"),
	}

	var missing []string
	missing = appendMissing(missing, "CONFLUENCE_DOMAIN", c.Domain)
	missing = appendMissing(missing, "CONFLUENCE_USERNAME", c.Username)
	missing = appendMissing(missing, "CONFLUENCE_API_TOKEN", c.APIToken)
	missing = appendMissing(missing, "CONFLUENCE_PARENT_PAGE_ID", c.ParentPageID)
	missing = append(missing, c.Index.missing()...)
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrConfigurationMissing, strings.Join(missing, ", "))
	}

	if c.BaseURL == "" {
		c.BaseURL = "https://" + c.Domain
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if err := c.Index.validate(); err != nil {
		return nil, err
	}
	if c.PageLimit <= 0 {
		return nil, invalidf("CONFLUENCE_PAGE_LIMIT must be positive")
	}
	if c.Sanitizer != SanitizerTags && c.Sanitizer != SanitizerTextV2 {
		return nil, invalidf("CONTENT_SANITIZER must be %q or %q", SanitizerTags, SanitizerTextV2)
	}
	if c.Interval < 0 {
		return nil, invalidf("SYNC_INTERVAL cannot be negative")
	}
	if c.RunTimeout <= 0 {
		return nil, invalidf("SYNC_RUN_TIMEOUT must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Index:       loadIndex(),
		BindAddr:    getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage: getInt("API_PAGE_SIZE", 10),
		MaxPage:     getInt("API_MAX_PAGE_SIZE", 50),
	}

	if missing := c.Index.missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrConfigurationMissing, strings.Join(missing, ", "))
	}
	if err := c.Index.validate(); err != nil {
		return nil, err
	}
	if c.DefaultPage <= 0 {
		return nil, invalidf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, invalidf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, invalidf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

func loadIndex() Index {
	return Index{
		Backend:            strings.ToLower(getEnv("INDEX_BACKEND", BackendAzure)),
		AzureEndpoint:      strings.TrimRight(getEnv("AZURE_SEARCH_ENDPOINT", ""), "/"),
		AzureIndex:         getEnv("AZURE_SEARCH_INDEX", ""),
		AzureKey:           getEnv("AZURE_SEARCH_KEY", ""),
		AzureAPIVersion:    getEnv("AZURE_SEARCH_API_VERSION", "2023-07-01-Preview"),
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", ""),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", ""),
	}
}

func (i Index) missing() []string {
	var out []string
	switch i.Backend {
	case BackendElasticsearch:
		out = appendMissing(out, "ELASTICSEARCH_ADDR", i.ElasticsearchAddr)
		out = appendMissing(out, "ELASTICSEARCH_INDEX", i.ElasticsearchIndex)
	case BackendAzure:
		out = appendMissing(out, "AZURE_SEARCH_ENDPOINT", i.AzureEndpoint)
		out = appendMissing(out, "AZURE_SEARCH_INDEX", i.AzureIndex)
		out = appendMissing(out, "AZURE_SEARCH_KEY", i.AzureKey)
	}
	return out
}

func (i Index) validate() error {
	if i.Backend != BackendAzure && i.Backend != BackendElasticsearch {
		return invalidf("INDEX_BACKEND must be %q or %q", BackendAzure, BackendElasticsearch)
	}
	return nil
}

func appendMissing(out []string, key, value string) []string {
	if strings.TrimSpace(value) == "" {
		return append(out, key)
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// invalidf reports an unusable value under the configuration error kind.
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrConfigurationMissing, fmt.Sprintf(format, args...))
}
