package parse

import (
	"net"
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/devseo/siteaudit/pkg/utils"
)

// staticExtensions lists path suffixes that never lead to crawlable HTML.
var staticExtensions = map[string]bool{
	// documents
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true,
	// images
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".svg": true,
	".webp": true,
	// archives
	".zip": true, ".tar": true, ".gz": true, ".rar": true, ".7z": true,
	// media
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".wmv": true,
	// code and data
	".css": true, ".js": true, ".json": true, ".xml": true, ".rss": true,
}

// blockedPathSegments are infrastructure/account paths a polite crawler
// stays out of regardless of robots.txt.
var blockedPathSegments = []string{
	"/admin", "/login", "/wp-admin", "/user/", "/account", "/cart", "/checkout",
}

// Scope decides whether a discovered URL belongs to the audited site.
// Subdomains of the target's registrable domain are in scope; static
// assets and admin/account paths are not.
type Scope struct {
	domain  string           // registrable (or www-stripped fallback) form of the target
	blocked []*regexp.Regexp // extra path patterns from config
}

// NewScope builds a scope for the target domain. blockedPathPatterns are
// additional path regexes from config; an invalid pattern is an error.
func NewScope(domain string, blockedPathPatterns []string) (*Scope, error) {
	compiled, err := utils.CompileRegexPatterns(blockedPathPatterns)
	if err != nil {
		return nil, err
	}
	host := strings.ToLower(domain)
	if h, _, splitErr := net.SplitHostPort(host); splitErr == nil {
		host = h
	}
	return &Scope{
		domain:  registrableDomain(host),
		blocked: compiled,
	}, nil
}

// InScope reports whether u should be crawled: http(s) scheme, same
// registrable domain as the target, and a path that is neither a static
// asset nor a blocked segment.
func (s *Scope) InScope(u *url.URL) bool {
	if u == nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if registrableDomain(u.Hostname()) != s.domain {
		return false
	}
	lowerPath := strings.ToLower(u.Path)
	if staticExtensions[path.Ext(lowerPath)] {
		return false
	}
	for _, segment := range blockedPathSegments {
		if strings.Contains(lowerPath, segment) {
			return false
		}
	}
	for _, re := range s.blocked {
		if re.MatchString(u.Path) {
			return false
		}
	}
	return true
}

// registrableDomain reduces a host to its eTLD+1 so that subdomains
// (including www.) compare equal. IP literals are returned verbatim, and
// hosts without a public suffix (localhost, bare names) fall back to
// www-stripped equality.
func registrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if ip := net.ParseIP(host); ip != nil {
		return host
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return strings.TrimPrefix(host, "www.")
}
