package web

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/microcosm-cc/bluemonday"
	"github.com/saintfish/chardet"
)

// sanitizer strips active content from rendered HTML. Scripts run only
// through the sandbox, never from markup.
var sanitizer = bluemonday.UGCPolicy()

// Page is the parsed state of one loaded document.
type Page struct {
	URL        string
	Title      string
	Favicons   []string
	ThemeColor string
	Charset    string
	// Text is the document's visible text, used by find-in-page.
	Text string
	// HTML is the sanitized markup.
	HTML string
	// Autoplay reports media elements that start playing on load.
	Autoplay bool

	doc *goquery.Document
}

// parsePage builds a Page from a fetched body. Only HTML documents are
// renderable; other media types fail the load.
func parsePage(pageURL string, body []byte, contentType string) (*Page, error) {
	if contentType == "" {
		contentType = mimetype.Detect(body).String()
	}
	if !isHTML(contentType) {
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	page := &Page{
		URL:     pageURL,
		Charset: detectCharset(body),
		doc:     doc,
	}

	page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if page.Title == "" {
		page.Title = base.Host
	}

	doc.Find(`link[rel="icon"], link[rel="shortcut icon"], link[rel="apple-touch-icon"]`).
		Each(func(_ int, s *goquery.Selection) {
			if href, ok := s.Attr("href"); ok && href != "" {
				if abs := resolveURL(href, base); abs != "" {
					page.Favicons = append(page.Favicons, abs)
				}
			}
		})
	if len(page.Favicons) == 0 {
		page.Favicons = []string{base.Scheme + "://" + base.Host + "/favicon.ico"}
	}

	page.ThemeColor, _ = doc.Find(`meta[name="theme-color"]`).First().Attr("content")
	page.Autoplay = doc.Find("video[autoplay], audio[autoplay]").Length() > 0

	// Neutralize active content in the query document before scripts or
	// find-in-page see it.
	doc.Find("script").Remove()
	for _, attr := range []string{"onclick", "onload", "onerror", "onsubmit"} {
		doc.Find("[" + attr + "]").RemoveAttr(attr)
	}

	page.Text = doc.Text()
	page.HTML = sanitizer.Sanitize(string(body))
	return page, nil
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// detectCharset reports the document's likely encoding, empty if detection
// fails. Detection is informational; the body is parsed as-is.
func detectCharset(body []byte) string {
	result, err := chardet.NewTextDetector().DetectBest(body)
	if err != nil {
		return ""
	}
	return strings.ToLower(result.Charset)
}

// resolveURL makes href absolute against base, dropping unsafe schemes.
func resolveURL(href string, base *url.URL) string {
	lower := strings.ToLower(strings.TrimSpace(href))
	for _, scheme := range []string{"data:", "javascript:", "mailto:", "tel:", "vbscript:"} {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(parsed).String()
}

// matchCount counts case-insensitive occurrences of text in the page.
func (p *Page) matchCount(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(strings.ToLower(p.Text), strings.ToLower(text))
}
