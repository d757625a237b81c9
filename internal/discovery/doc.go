// Package discovery runs the URL discoverers, deduplicates their output by
// canonical URL and reconciles it with the document catalog.
//
// Discoverers live in subpackages (hub, sitemap, archive) and share the link
// rules, fetch contract and pacing contract declared here.
package discovery
