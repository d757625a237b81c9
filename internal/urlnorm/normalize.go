// Package urlnorm canonicalizes discovered URLs into stable dedup keys and
// fingerprints fetched content.
package urlnorm

import (
	"net"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/JakeFAU/docket-crawler/internal/hash/sha256"
)

// trackingParams are stripped during normalization. Keys are compared lowercased.
var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"gclsrc":  {},
	"dclid":   {},
	"msclkid": {},
	"mc_cid":  {},
	"mc_eid":  {},
	"_ga":     {},
	"_gl":     {},
	"ref":     {},
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Normalize returns the canonical form of rawURL: https scheme, lowercase host
// without default port, tracking parameters removed, remaining parameters
// sorted by key, no fragment and no trailing slash except at the root.
// Input that cannot be parsed as an absolute http(s) URL is returned unchanged.
func Normalize(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return rawURL
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return rawURL
	}
	scheme := strings.ToLower(parsed.Scheme)
	if (scheme != "http" && scheme != "https") || parsed.Host == "" {
		return rawURL
	}
	parsed.Scheme = "https"
	parsed.Host = normalizeHost(parsed, scheme)
	parsed.User = nil
	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.RawQuery = buildCleanQuery(parseQuery(parsed.RawQuery))
	parsed.ForceQuery = false
	parsed.Path = normalizePath(parsed.Path)
	parsed.RawPath = ""
	return parsed.String()
}

// IsTrackingParam reports whether key is stripped by Normalize.
func IsTrackingParam(key string) bool {
	key = strings.ToLower(key)
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	_, ok := trackingParams[key]
	return ok
}

// HashBytes fingerprints raw fetched bytes.
func HashBytes(data []byte) string {
	return sha256.Sum(data)
}

// HashText fingerprints extracted text with the same algorithm as HashBytes.
func HashText(text string) string {
	return sha256.SumString(text)
}

// normalizeHost lowercases the host and drops a default port. IPv6 literals
// keep their brackets.
func normalizeHost(u *url.URL, originalScheme string) string {
	hostname := strings.ToLower(u.Hostname())
	port := u.Port()
	if port != "" {
		for _, scheme := range []string{originalScheme, "https"} {
			if defaultPort, ok := defaultPorts[scheme]; ok && port == defaultPort {
				port = ""
				break
			}
		}
	}
	if port != "" {
		return net.JoinHostPort(hostname, port)
	}
	if strings.Contains(hostname, ":") {
		return "[" + hostname + "]"
	}
	return hostname
}

// queryParam is one key/value pair. Pairs whose escapes cannot be decoded
// keep their original text in raw.
type queryParam struct {
	key string
	val string
	raw string
}

// parseQuery splits on both '&' and ';' so legacy semicolon separators do not
// defeat normalization. Pair order is preserved.
func parseQuery(rawQuery string) []queryParam {
	var params []queryParam
	for _, token := range strings.FieldsFunc(rawQuery, func(r rune) bool { return r == '&' || r == ';' }) {
		rawKey, rawVal, _ := strings.Cut(token, "=")
		key, keyErr := url.QueryUnescape(rawKey)
		val, valErr := url.QueryUnescape(rawVal)
		if keyErr != nil || valErr != nil {
			params = append(params, queryParam{key: rawKey, raw: token})
			continue
		}
		params = append(params, queryParam{key: key, val: val})
	}
	return params
}

func buildCleanQuery(params []queryParam) string {
	kept := make([]queryParam, 0, len(params))
	for _, p := range params {
		if !IsTrackingParam(p.key) {
			kept = append(kept, p)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].key < kept[j].key })

	var b strings.Builder
	for _, p := range kept {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		if p.raw != "" {
			b.WriteString(p.raw)
			continue
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.val))
	}
	return b.String()
}

func normalizePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	cleaned := path.Clean(p)
	if cleaned == "/" {
		return cleaned
	}
	return strings.TrimRight(cleaned, "/")
}
