package hub

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/docket-crawler/internal/discovery"
)

// minSequenceItems is the smallest run of numbered links treated as a sequence.
const minSequenceItems = 2

var sequencePattern = regexp.MustCompile(`^(.*/)([A-Za-z][A-Za-z_-]*?)(\d{3,})(\.[A-Za-z0-9]+)$`)

// sequence is a family of document URLs named prefix + zero-padded number + extension.
type sequence struct {
	dir     string
	prefix  string
	width   int
	ext     string
	numbers map[int]struct{}
}

func (s *sequence) key() string {
	return fmt.Sprintf("%s|%s|%d|%s", s.dir, s.prefix, s.width, s.ext)
}

func (s *sequence) format(n int) string {
	return fmt.Sprintf("%s%s%0*d%s", s.dir, s.prefix, s.width, n, s.ext)
}

func (s *sequence) bounds() (int, int) {
	first, last := 0, 0
	started := false
	for n := range s.numbers {
		if !started || n < first {
			first = n
		}
		if !started || n > last {
			last = n
		}
		started = true
	}
	return first, last
}

// parseSequenceMember splits a document URL into its sequence and number.
func parseSequenceMember(u *url.URL) (*sequence, int, bool) {
	if u.RawQuery != "" {
		return nil, 0, false
	}
	base := u.Scheme + "://" + u.Host + u.EscapedPath()
	m := sequencePattern.FindStringSubmatch(base)
	if m == nil {
		return nil, 0, false
	}
	n, err := strconv.Atoi(m[3])
	if err != nil {
		return nil, 0, false
	}
	return &sequence{
		dir:     m[1],
		prefix:  m[2],
		width:   len(m[3]),
		ext:     m[4],
		numbers: map[int]struct{}{n: {}},
	}, n, true
}

// detectSequence returns the largest numbered family among urls, or nil.
func detectSequence(urls []*url.URL) *sequence {
	groups := make(map[string]*sequence)
	var order []string
	for _, u := range urls {
		seq, n, ok := parseSequenceMember(u)
		if !ok {
			continue
		}
		existing, found := groups[seq.key()]
		if !found {
			groups[seq.key()] = seq
			order = append(order, seq.key())
			continue
		}
		existing.numbers[n] = struct{}{}
	}
	var best *sequence
	for _, key := range order {
		seq := groups[key]
		if len(seq.numbers) < minSequenceItems {
			continue
		}
		if best == nil || len(seq.numbers) > len(best.numbers) {
			best = seq
		}
	}
	return best
}

// absorb adds u's number to s when u belongs to the same family.
func (s *sequence) absorb(u *url.URL) bool {
	other, n, ok := parseSequenceMember(u)
	if !ok || other.key() != s.key() {
		return false
	}
	s.numbers[n] = struct{}{}
	return true
}

// pager describes the numbered pagination controls of a listing page.
type pager struct {
	total    int
	pages    map[int]string
	template *url.URL
	// offset is the displayed page number minus the page query value.
	offset int
}

// parsePager reads pagination links that point back at the listing's own path.
// Page query values are assumed zero-based unless a numbered link shows otherwise.
func parsePager(listing *url.URL, links []discovery.Link) pager {
	p := pager{pages: make(map[int]string), offset: 1}
	maxParam := -1
	offsetKnown := false
	for _, l := range links {
		if l.URL.Host != listing.Host || strings.TrimRight(l.URL.Path, "/") != strings.TrimRight(listing.Path, "/") {
			continue
		}
		raw := l.URL.Query().Get("page")
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			continue
		}
		if p.template == nil {
			clone := *l.URL
			p.template = &clone
		}
		if value > maxParam {
			maxParam = value
		}
		if shown, err := strconv.Atoi(strings.TrimSpace(l.Text)); err == nil && shown > 0 {
			p.pages[shown] = l.URL.String()
			if !offsetKnown {
				p.offset = shown - value
				offsetKnown = true
			}
		}
	}
	if maxParam < 0 {
		return p
	}
	p.total = maxParam + p.offset
	for shown := range p.pages {
		if shown > p.total {
			p.total = shown
		}
	}
	return p
}

// pageURL returns the URL of the 1-based page number k.
func (p pager) pageURL(k int) string {
	if u, ok := p.pages[k]; ok {
		return u
	}
	if p.template == nil {
		return ""
	}
	clone := *p.template
	q := clone.Query()
	q.Set("page", strconv.Itoa(k-p.offset))
	clone.RawQuery = q.Encode()
	return clone.String()
}

// missingNumbers lists the numbers expected in s for totalPages of perPage
// items that were not observed, capped at limit.
func missingNumbers(s *sequence, perPage, totalPages, limit int) []int {
	if perPage <= 0 || totalPages <= 0 {
		return nil
	}
	first, last := s.bounds()
	end := first - 1 + perPage*totalPages
	if limit > 0 && end-last > limit {
		end = last + limit
	}
	// Gaps inside the observed range are not filled.
	var out []int
	for n := last + 1; n <= end; n++ {
		out = append(out, n)
	}
	return out
}
