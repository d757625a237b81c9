package extract

import (
	"bytes"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"

	"github.com/JakeFAU/docket-crawler/internal/store"
)

// boilerplate is stripped from HTML before text is read.
const boilerplate = "script, style, noscript, template, svg, nav, header, footer, aside, form, iframe"

// mainSelectors are tried in order; the first with enough text wins.
var mainSelectors = []string{
	"main",
	"article",
	"[role=main]",
	"#main-content",
	".field--name-body",
	"#content",
	".content",
}

// minMainChars is how much text a main-content container needs before it is
// preferred over the whole body.
const minMainChars = 200

// Extracted is the text pulled from one document.
type Extracted struct {
	Text  string
	Pages int
	Title string
}

// ClassifyContent picks the file type from the Content-Type header, then the
// URL extension, then the leading bytes.
func ClassifyContent(contentType, rawURL string, body []byte) store.FileType {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "application/pdf", "application/x-pdf":
			return store.FileTypePDF
		case "text/html", "application/xhtml+xml":
			return store.FileTypeHTML
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".pdf":
			return store.FileTypePDF
		case ".html", ".htm", ".shtml":
			return store.FileTypeHTML
		}
	}
	switch {
	case bytes.HasPrefix(body, []byte("%PDF-")):
		return store.FileTypePDF
	case looksLikeHTML(body):
		return store.FileTypeHTML
	}
	return store.FileTypeUnknown
}

func looksLikeHTML(body []byte) bool {
	head := body
	if len(head) > 512 {
		head = head[:512]
	}
	lower := bytes.ToLower(bytes.TrimSpace(head))
	return bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html"))
}

// ExtractPDF reads plain text page by page. Pages that fail to decode are
// skipped; a document that cannot be opened is an error.
func ExtractPDF(data []byte) (out Extracted, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = Extracted{}
			err = fmt.Errorf("pdf decode panic: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Extracted{}, fmt.Errorf("pdf reader: %w", err)
	}
	out.Pages = reader.NumPage()
	parts := make([]string, 0, out.Pages)
	for i := 1; i <= out.Pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = collapseWhitespace(text); text != "" {
			parts = append(parts, text)
		}
	}
	out.Text = strings.Join(parts, "\n\n")
	return out, nil
}

// ExtractHTML strips boilerplate and returns the main-content text, falling
// back to the whole body.
func ExtractHTML(data []byte) (Extracted, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return Extracted{}, fmt.Errorf("parse html: %w", err)
	}
	out := Extracted{Title: collapseWhitespace(doc.Find("title").First().Text())}
	doc.Find(boilerplate).Remove()

	for _, selector := range mainSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		text := collapseWhitespace(sel.Text())
		if utf8.RuneCountInString(text) >= minMainChars {
			out.Text = text
			return out, nil
		}
	}
	out.Text = collapseWhitespace(doc.Find("body").Text())
	return out, nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
