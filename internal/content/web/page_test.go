package web

import (
	"strings"
	"testing"
)

const sampleHTML = `<!DOCTYPE html>
<html>
<head>
<title> Example Page </title>
<link rel="icon" href="/static/icon.png">
<meta name="theme-color" content="#112233">
<script>var secret = "hidden";</script>
</head>
<body onload="boom()">
<p>Hello world. Hello again.</p>
</body>
</html>`

func TestParsePage(t *testing.T) {
	page, err := parsePage("https://example.com/a/b", []byte(sampleHTML), "text/html; charset=utf-8")
	if err != nil {
		t.Fatal(err)
	}

	if page.Title != "Example Page" {
		t.Errorf("title = %q", page.Title)
	}
	if len(page.Favicons) != 1 || page.Favicons[0] != "https://example.com/static/icon.png" {
		t.Errorf("favicons = %v", page.Favicons)
	}
	if page.ThemeColor != "#112233" {
		t.Errorf("theme color = %q", page.ThemeColor)
	}
	if strings.Contains(page.Text, "secret") {
		t.Error("script body leaked into page text")
	}
	if strings.Contains(page.HTML, "<script") || strings.Contains(page.HTML, "onload") {
		t.Error("active content survived sanitization")
	}
}

func TestParsePageDefaults(t *testing.T) {
	page, err := parsePage("https://example.com/", []byte("<html><body>hi</body></html>"), "text/html")
	if err != nil {
		t.Fatal(err)
	}
	if page.Title != "example.com" {
		t.Errorf("title fallback = %q, want host", page.Title)
	}
	if len(page.Favicons) != 1 || page.Favicons[0] != "https://example.com/favicon.ico" {
		t.Errorf("favicon fallback = %v", page.Favicons)
	}
}

func TestParsePageRejectsNonHTML(t *testing.T) {
	if _, err := parsePage("https://example.com/x.png", []byte{0x89, 'P', 'N', 'G'}, "image/png"); err == nil {
		t.Fatal("binary content must not parse as a page")
	}
	// Content type sniffed from the body when the header is missing.
	if _, err := parsePage("https://example.com/x", []byte(`{"json": true}`), ""); err == nil {
		t.Fatal("json content must not parse as a page")
	}
}

func TestMatchCount(t *testing.T) {
	page, err := parsePage("https://example.com/", []byte(sampleHTML), "text/html")
	if err != nil {
		t.Fatal(err)
	}
	if n := page.matchCount("hello"); n != 2 {
		t.Errorf("matches = %d, want 2 (case-insensitive)", n)
	}
	if n := page.matchCount(""); n != 0 {
		t.Errorf("empty needle matches = %d, want 0", n)
	}
}

func TestResolveURLDropsUnsafeSchemes(t *testing.T) {
	page, err := parsePage("https://example.com/",
		[]byte(`<html><head><link rel="icon" href="javascript:alert(1)"></head><body></body></html>`),
		"text/html")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Favicons) != 1 || page.Favicons[0] != "https://example.com/favicon.ico" {
		t.Errorf("unsafe favicon href must fall back to default, got %v", page.Favicons)
	}
}
