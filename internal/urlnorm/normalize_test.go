package urlnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"forces https and lowercases host", "HTTP://WWW.Justice.GOV/epstein", "https://www.justice.gov/epstein"},
		{"strips fragment", "https://www.justice.gov/epstein#files", "https://www.justice.gov/epstein"},
		{"drops trailing slash", "https://www.justice.gov/epstein/", "https://www.justice.gov/epstein"},
		{"keeps root slash", "https://www.justice.gov/", "https://www.justice.gov/"},
		{"adds root slash", "https://www.justice.gov", "https://www.justice.gov/"},
		{"sorts params", "https://x.gov/list?page=2&b=1", "https://x.gov/list?b=1&page=2"},
		{"strips tracking", "https://x.gov/a.pdf?utm_source=mail&fbclid=1&id=7", "https://x.gov/a.pdf?id=7"},
		{"strips tracking case-insensitive", "https://x.gov/a?UTM_Medium=x", "https://x.gov/a"},
		{"drops default port", "http://x.gov:80/a", "https://x.gov/a"},
		{"keeps custom port", "https://x.gov:8443/a", "https://x.gov:8443/a"},
		{"cleans dot segments", "https://x.gov/a/../b/./c.pdf", "https://x.gov/b/c.pdf"},
		{"semicolon separators", "https://x.gov/files?v=2;id=1", "https://x.gov/files?id=1&v=2"},
		{"keeps undecodable pair verbatim", "https://x.gov/a?b=1&%zz", "https://x.gov/a?%zz&b=1"},
		{"ipv6 keeps brackets with port", "http://[2001:DB8::1]:8080/a/", "https://[2001:db8::1]:8080/a"},
		{"ipv6 drops default port", "http://[2001:db8::1]:80/a", "https://[2001:db8::1]/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Normalize(tt.in)
			require.Equal(t, tt.want, got)
			require.Equal(t, got, Normalize(got), "normalize must be idempotent")
		})
	}
}

func TestNormalizeEquivalentForms(t *testing.T) {
	t.Parallel()

	forms := []string{
		"https://www.justice.gov/epstein/doj-disclosures?b=2&a=1",
		"http://www.justice.gov/epstein/doj-disclosures/?a=1&b=2",
		"HTTPS://WWW.JUSTICE.GOV/epstein/doj-disclosures?a=1&b=2&utm_campaign=x",
		"https://www.justice.gov/epstein/doj-disclosures?gclid=abc&a=1&b=2#top",
		"HTTP://WWW.Justice.GOV/epstein/doj-disclosures/?a=1;b=2#top",
		"https://www.justice.gov/epstein/doj-disclosures?a=1;utm_source=x;b=2",
	}
	want := Normalize(forms[0])
	for _, f := range forms[1:] {
		assert.Equal(t, want, Normalize(f), f)
	}
}

func TestNormalizeMalformedReturnsInput(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"",
		"not a url",
		"/relative/path.pdf",
		"mailto:press@justice.gov",
		"http://bad host/%zz",
		"https://x.gov/a?%zz",
	} {
		assert.Equal(t, in, Normalize(in), in)
	}
}

func TestHashBytesMatchesHashText(t *testing.T) {
	t.Parallel()

	require.Equal(t, HashText("document body"), HashBytes([]byte("document body")))
	require.NotEqual(t, HashText("a"), HashText("b"))
	require.Len(t, HashText(""), 64)
}
