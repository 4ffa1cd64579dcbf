package scraper

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Snapshot is the serialized DOM of the live page at one moment.
type Snapshot struct {
	URL  string
	HTML string
}

// Page parses the snapshot into a queryable Page.
func (snapshot Snapshot) Page(logger Logger) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snapshot.HTML))
	if err != nil {
		return nil, err
	}

	doc.Url, err = url.Parse(snapshot.URL)
	if err != nil {
		return nil, err
	}
	baseUrl := doc.Url

	base := doc.Find("head base")
	if base.Length() == 1 {
		if href, exists := base.Attr("href"); exists {
			baseUrl, err = doc.Url.Parse(href)
			if err != nil {
				return nil, err
			}
		}
	}

	if logger == nil {
		logger = DummyLogger{}
	}
	return &Page{doc, baseUrl, logger}, nil
}
