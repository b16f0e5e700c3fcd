package headmeta

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

/*
Responsibilities

- Parse a fetched document's <head> section: title, meta tags, canonical
  link, robots directive, schema.org JSON-LD presence
- Partition outbound <a href> links into internal/external by host

This is the one piece of DOM parsing the engine performs itself; it never
extracts body content for storage or rendering, only enough structure to
serve the filter chain, scorer set, and link discovery.
*/

// Link is an outbound anchor discovered on a parsed document.
type Link struct {
	Href    string
	Text    string
	Context string
}

// Document is the head-section projection of a fetched page.
type Document struct {
	Title           string
	MetaDescription string
	MetaKeywords    string
	MetaRobots      string
	Canonical       string
	OtherMeta       map[string]string
	HasSchemaOrg    bool
	InternalLinks   []Link
	ExternalLinks   []Link
}

// Reader parses HTML documents into Document projections.
type Reader struct{}

func NewReader() Reader {
	return Reader{}
}

// Parse reads body (a full HTML document or just its head) and extracts
// head metadata plus the document's outbound links, partitioned by whether
// their host matches sourceURL's host.
func (Reader) Parse(body io.Reader, sourceURL *url.URL) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return Document{}, err
	}

	d := Document{OtherMeta: make(map[string]string)}

	d.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("name")
		content, _ := sel.Attr("content")
		if name == "" {
			return
		}
		switch strings.ToLower(name) {
		case "description":
			d.MetaDescription = content
		case "keywords":
			d.MetaKeywords = content
		case "robots":
			d.MetaRobots = content
		default:
			d.OtherMeta[strings.ToLower(name)] = content
		}
	})

	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		d.Canonical = href
	}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, _ *goquery.Selection) {
		d.HasSchemaOrg = true
	})

	var sourceHost string
	if sourceURL != nil {
		sourceHost = strings.ToLower(sourceURL.Hostname())
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if href == "" {
			return
		}
		link := Link{
			Href:    href,
			Text:    strings.TrimSpace(sel.Text()),
			Context: strings.TrimSpace(sel.Closest("p,li,nav,header,footer,section,article").Text()),
		}

		resolved, err := url.Parse(href)
		if err != nil {
			d.ExternalLinks = append(d.ExternalLinks, link)
			return
		}
		if sourceURL != nil {
			resolved = sourceURL.ResolveReference(resolved)
		}
		if sourceHost != "" && strings.EqualFold(resolved.Hostname(), sourceHost) {
			d.InternalLinks = append(d.InternalLinks, link)
		} else {
			d.ExternalLinks = append(d.ExternalLinks, link)
		}
	})

	return d, nil
}
