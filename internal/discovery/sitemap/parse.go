package sitemap

import (
	"bytes"
	"compress/gzip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

const dateOnlyFormat = "2006-01-02"

// maxDecompressed bounds a gzipped sitemap after decompression.
const maxDecompressed = 50 << 20

// Entry is one <url> of a urlset.
type Entry struct {
	Loc     string
	LastMod *time.Time
}

// document is either a urlset or a sitemapindex.
type document struct {
	Entries  []Entry
	Children []string
}

type xmlRoot struct {
	XMLName  xml.Name
	URLs     []xmlURL     `xml:"url"`
	Sitemaps []xmlSitemap `xml:"sitemap"`
}

type xmlURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

type xmlSitemap struct {
	Loc string `xml:"loc"`
}

// parse decodes a sitemap or sitemap index, transparently gunzipping the body.
func parse(body []byte) (document, error) {
	raw, err := maybeGunzip(body)
	if err != nil {
		return document{}, err
	}
	var root xmlRoot
	if err := xml.Unmarshal(raw, &root); err != nil {
		return document{}, fmt.Errorf("parse sitemap: %w", err)
	}

	var doc document
	switch root.XMLName.Local {
	case "sitemapindex":
		for _, s := range root.Sitemaps {
			if loc := strings.TrimSpace(s.Loc); loc != "" {
				doc.Children = append(doc.Children, loc)
			}
		}
	case "urlset":
		for _, u := range root.URLs {
			loc := strings.TrimSpace(u.Loc)
			if loc == "" {
				continue
			}
			entry := Entry{Loc: loc}
			if t, ok := parseLastMod(u.LastMod); ok {
				entry.LastMod = &t
			}
			doc.Entries = append(doc.Entries, entry)
		}
	default:
		return document{}, fmt.Errorf("parse sitemap: unexpected root element %q", root.XMLName.Local)
	}
	return doc, nil
}

func maybeGunzip(body []byte) ([]byte, error) {
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("open gzip sitemap: %w", err)
	}
	defer func() {
		_ = zr.Close()
	}()
	out, err := io.ReadAll(io.LimitReader(zr, maxDecompressed))
	if err != nil {
		return nil, fmt.Errorf("read gzip sitemap: %w", err)
	}
	return out, nil
}

func parseLastMod(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	if t, err := time.Parse(dateOnlyFormat, value); err == nil {
		return t, true
	}
	return time.Time{}, false
}
