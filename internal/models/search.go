package models

// SearchParams narrow a query against the index.
type SearchParams struct {
	Query string
	From  int
	Size  int
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64            `json:"total"`
	Items []SearchDocument `json:"items"`
}
