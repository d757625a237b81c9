package extract

import (
	"unicode/utf8"

	"github.com/JakeFAU/docket-crawler/internal/store"
)

// Thresholds drive the status decision.
type Thresholds struct {
	// MinTextLength is the character count text must exceed to be indexed.
	MinTextLength int
	// MinCharsPerPage flags PDFs below this density for OCR.
	MinCharsPerPage float64
}

// DefaultThresholds are the production cutoffs.
var DefaultThresholds = Thresholds{MinTextLength: 50, MinCharsPerPage: 50}

// Assessment is the scored outcome for one extraction.
type Assessment struct {
	Length      int
	Quality     float64
	OCRRequired bool
	Status      store.DocumentStatus
}

// Assess scores text and decides the final status: needs_ocr when a PDF is
// too sparse, indexed when the text is long enough, error otherwise.
func Assess(fileType store.FileType, text string, pages int, t Thresholds) Assessment {
	length := utf8.RuneCountInString(text)
	a := Assessment{Length: length}
	if fileType == store.FileTypePDF {
		if pages > 0 {
			a.Quality = float64(length) / float64(pages)
			a.OCRRequired = a.Quality < t.MinCharsPerPage
		}
	} else if length > 0 {
		a.Quality = 100
	}
	switch {
	case a.OCRRequired:
		a.Status = store.StatusNeedsOCR
	case length > t.MinTextLength:
		a.Status = store.StatusIndexed
	default:
		a.Status = store.StatusError
	}
	return a
}
