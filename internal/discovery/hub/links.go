package hub

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/docket-crawler/internal/discovery"
)

// extractLinks parses every anchor on a page into absolute links, in document order.
func extractLinks(page discovery.Page) ([]discovery.Link, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	baseRaw := page.FinalURL
	if baseRaw == "" {
		baseRaw = page.URL
	}
	base, err := url.Parse(baseRaw)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if override, perr := base.Parse(strings.TrimSpace(href)); perr == nil {
			base = override
		}
	}

	var links []discovery.Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		u, perr := base.Parse(href)
		if perr != nil {
			return
		}
		u.Fragment = ""
		u.RawFragment = ""
		links = append(links, discovery.Link{URL: u, Text: collapseSpace(s.Text())})
	})
	return links, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
