package discovery

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/JakeFAU/docket-crawler/internal/store"
)

// LinkKind is the classification of a link found on a hub page.
type LinkKind int

// Link classifications.
const (
	LinkIgnore LinkKind = iota
	LinkDocument
	LinkHub
	LinkContent
)

func (k LinkKind) String() string {
	switch k {
	case LinkDocument:
		return "document"
	case LinkHub:
		return "hub"
	case LinkContent:
		return "content"
	default:
		return "ignore"
	}
}

// Link is an absolute URL plus its anchor text.
type Link struct {
	URL  *url.URL
	Text string
}

// HubRule marks a link as a further hub page.
type HubRule struct {
	Name  string
	Match func(Link) bool
}

// RulesConfig is the user-facing form of Rules.
type RulesConfig struct {
	AllowedHosts       []string
	AllowPathPatterns  []string
	DocumentExtensions []string
	HubPathPatterns    []string
	HubTextPatterns    []string
}

// Rules decides which links are relevant and how to treat them.
type Rules struct {
	allowedHosts map[string]struct{}
	allowPaths   []*regexp.Regexp
	docExts      map[string]struct{}
	hubRules     []HubRule
}

// Default rule values for the DOJ disclosure pages.
var (
	DefaultDocumentExtensions = []string{".pdf", ".doc", ".docx", ".txt", ".csv", ".xls", ".xlsx", ".zip", ".jpg", ".png"}
	DefaultHubPathPatterns    = []string{
		`/(index|listing|archive|library|documents|disclosures|data-?sets?|court-records|foia)(/|$)`,
	}
	DefaultHubTextPatterns = []string{
		`^(next|previous|prev|last|first|[0-9]+|›|»|‹|«)$`,
		`\b(data set|dataset|view all|all documents|index|more documents|court records|disclosures)\b`,
	}
)

// NewRules compiles cfg. Empty lists fall back to defaults except for the
// allow-lists, which accept everything when empty.
func NewRules(cfg RulesConfig) (*Rules, error) {
	r := &Rules{
		allowedHosts: make(map[string]struct{}),
		docExts:      make(map[string]struct{}),
	}
	for _, host := range cfg.AllowedHosts {
		r.allowedHosts[strings.ToLower(strings.TrimSpace(host))] = struct{}{}
	}
	for _, pattern := range cfg.AllowPathPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile allow pattern %q: %w", pattern, err)
		}
		r.allowPaths = append(r.allowPaths, re)
	}
	exts := cfg.DocumentExtensions
	if len(exts) == 0 {
		exts = DefaultDocumentExtensions
	}
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		r.docExts[ext] = struct{}{}
	}

	hubPaths := cfg.HubPathPatterns
	if len(hubPaths) == 0 {
		hubPaths = DefaultHubPathPatterns
	}
	hubTexts := cfg.HubTextPatterns
	if len(hubTexts) == 0 {
		hubTexts = DefaultHubTextPatterns
	}
	r.hubRules = append(r.hubRules, HubRule{Name: "pagination-query", Match: hasPageParam})
	for _, pattern := range hubPaths {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("compile hub path pattern %q: %w", pattern, err)
		}
		r.hubRules = append(r.hubRules, HubRule{
			Name:  "path:" + pattern,
			Match: func(l Link) bool { return re.MatchString(l.URL.Path) },
		})
	}
	for _, pattern := range hubTexts {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("compile hub text pattern %q: %w", pattern, err)
		}
		r.hubRules = append(r.hubRules, HubRule{
			Name:  "text:" + pattern,
			Match: func(l Link) bool { return re.MatchString(strings.TrimSpace(l.Text)) },
		})
	}
	return r, nil
}

// MustRules is NewRules that panics on a bad pattern. Intended for tests and defaults.
func MustRules(cfg RulesConfig) *Rules {
	r, err := NewRules(cfg)
	if err != nil {
		panic(err)
	}
	return r
}

// Allowed reports whether u passes the host and path allow-lists.
func (r *Rules) Allowed(u *url.URL) bool {
	if u == nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	if len(r.allowedHosts) > 0 {
		if _, ok := r.allowedHosts[strings.ToLower(u.Hostname())]; !ok {
			return false
		}
	}
	if len(r.allowPaths) == 0 {
		return true
	}
	for _, re := range r.allowPaths {
		if re.MatchString(u.Path) {
			return true
		}
	}
	return false
}

// Classify applies the allow-list and then the rule table: document
// extension first, hub rules second, content page otherwise.
func (r *Rules) Classify(l Link) LinkKind {
	if !r.Allowed(l.URL) {
		return LinkIgnore
	}
	if r.IsDocument(l.URL) {
		return LinkDocument
	}
	if r.MatchHub(l) != "" {
		return LinkHub
	}
	return LinkContent
}

// IsDocument reports whether the URL path ends in a content-file extension.
func (r *Rules) IsDocument(u *url.URL) bool {
	_, ok := r.docExts[strings.ToLower(path.Ext(u.Path))]
	return ok
}

// MatchHub returns the name of the first hub rule matching l, or "".
func (r *Rules) MatchHub(l Link) string {
	for _, rule := range r.hubRules {
		if rule.Match(l) {
			return rule.Name
		}
	}
	return ""
}

func hasPageParam(l Link) bool {
	return l.URL.Query().Has("page")
}

// FileTypeFromURL infers the file type from the URL path extension.
func FileTypeFromURL(rawURL string) store.FileType {
	u, err := url.Parse(rawURL)
	if err != nil {
		return store.FileTypeUnknown
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".pdf":
		return store.FileTypePDF
	case ".html", ".htm", ".shtml", "":
		return store.FileTypeHTML
	default:
		return store.FileTypeUnknown
	}
}

type documentTypeRule struct {
	pattern *regexp.Regexp
	label   string
}

var documentTypeRules = []documentTypeRule{
	{regexp.MustCompile(`(?i)/EFTA\d+`), "DOJ Disclosure"},
	{regexp.MustCompile(`(?i)(court|docket|indictment|complaint|filing|unsealed|deposition|exhibit)`), "Court Document"},
	{regexp.MustCompile(`(?i)flight[-_ ]?log`), "Flight Log"},
	{regexp.MustCompile(`(?i)foia`), "FOIA Release"},
	{regexp.MustCompile(`(?i)(/opa/pr/|press[-_]?release|/news/)`), "Press Release"},
	{regexp.MustCompile(`(?i)(transcript|testimony|hearing)`), "Transcript"},
	{regexp.MustCompile(`(?i)\.pdf$`), "PDF Document"},
}

// ClassifyDocumentType makes a best-effort guess at a document's type from its URL.
func ClassifyDocumentType(rawURL string) string {
	target := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		target = u.Path
	}
	for _, rule := range documentTypeRules {
		if rule.pattern.MatchString(target) {
			return rule.label
		}
	}
	return "Web Page"
}
