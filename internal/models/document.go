package models

// RawPage is a single child page as returned by the Confluence content API
// with body.storage expanded. Optional fields decode to their zero value when absent.
type RawPage struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
	Version struct {
		When string `json:"when"`
	} `json:"version"`
}

// SearchDocument is the canonical structure stored in the search index.
type SearchDocument struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	URL          string `json:"url,omitempty"`
	LastModified string `json:"lastModified,omitempty"`
}
