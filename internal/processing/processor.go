package processing

import (
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/DeafMist/wiki-search-sync/internal/models"
)

// DocumentPrefix namespaces index keys produced from Confluence pages.
const DocumentPrefix = "confluence"

// Matches an opening or closing tag, or a dangling "<..." running to the end of input.
var tagRegex = regexp.MustCompile(`<[^>]*>?`)

// Matches only well-formed tags, so a decoded literal "<" in text survives.
var textTagRegex = regexp.MustCompile(`<[A-Za-z/!][^>]*>`)

var safeKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Sanitizer projects a markup body to plain text.
type Sanitizer func(body string) string

// StripTags removes every markup tag and leaves the remaining text untouched.
// Entities are not decoded.
func StripTags(body string) string {
	if body == "" {
		return ""
	}
	return tagRegex.ReplaceAllString(body, "")
}

// ExtractText parses the body as HTML and returns its text nodes.
// Entities are decoded and script/style contents dropped. Falls back to StripTags
// when the body cannot be parsed.
func ExtractText(body string) string {
	if body == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return StripTags(body)
	}
	doc.Find("script, style").Remove()
	// Decoded entities such as &lt;b&gt; would otherwise reintroduce tags.
	return textTagRegex.ReplaceAllString(doc.Text(), "")
}

// BuildDocumentID derives the index key for a source identifier.
// Identifiers outside the key alphabet are base64url encoded behind a "=" marker,
// which never appears in a plain identifier, keeping the mapping injective.
func BuildDocumentID(prefix, sourceID string) string {
	if safeKey.MatchString(sourceID) {
		return prefix + "-" + sourceID
	}
	return prefix + "-=" + base64.RawURLEncoding.EncodeToString([]byte(sourceID))
}

// BuildPageURL returns the absolute page URL, or "" when the page has no link.
func BuildPageURL(domain, webUI string) string {
	if webUI == "" {
		return ""
	}
	return "https://" + domain + "/wiki" + webUI
}

// Transformer maps raw pages to search documents.
type Transformer struct {
	Domain   string
	Prefix   string
	Sanitize Sanitizer
}

// NewTransformer returns a transformer using the named sanitizer ("tags" or "text-v2").
func NewTransformer(domain, sanitizer string) *Transformer {
	t := &Transformer{Domain: domain, Prefix: DocumentPrefix, Sanitize: StripTags}
	if sanitizer == "text-v2" {
		t.Sanitize = ExtractText
	}
	return t
}

// Transform converts a single page. It never fails: absent fields degrade
// to empty or omitted values.
func (t *Transformer) Transform(page models.RawPage) models.SearchDocument {
	sanitize := t.Sanitize
	if sanitize == nil {
		sanitize = StripTags
	}
	prefix := t.Prefix
	if prefix == "" {
		prefix = DocumentPrefix
	}

	return models.SearchDocument{
		ID:           BuildDocumentID(prefix, page.ID),
		Title:        page.Title,
		Content:      sanitize(page.Body.Storage.Value),
		URL:          BuildPageURL(t.Domain, page.Links.WebUI),
		LastModified: page.Version.When,
	}
}

// TransformAll converts pages in order.
func (t *Transformer) TransformAll(pages []models.RawPage) []models.SearchDocument {
	docs := make([]models.SearchDocument, 0, len(pages))
	for _, page := range pages {
		docs = append(docs, t.Transform(page))
	}
	return docs
}
