package parse

import (
	"net/url"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q) error: %v", raw, err)
	}
	return u
}

func TestNewScope_InvalidPattern(t *testing.T) {
	_, err := NewScope("example.com", []string{"[invalid"})
	if err == nil {
		t.Fatal("NewScope with invalid pattern: expected error, got nil")
	}
}

func TestScope_InScope_Domains(t *testing.T) {
	scope, err := NewScope("example.com", nil)
	if err != nil {
		t.Fatalf("NewScope error: %v", err)
	}

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"ExactDomain", "https://example.com/page", true},
		{"WWWPrefix", "https://www.example.com/page", true},
		{"Subdomain", "https://blog.example.com/post", true},
		{"OtherDomain", "https://other.com/page", false},
		{"SharedSuffix", "https://example.com.evil.com/page", false},
		{"HTTPScheme", "http://example.com/page", true},
		{"FTPScheme", "ftp://example.com/file", false},
		{"MailtoScheme", "mailto:team@example.com", false},
		{"UppercaseHost", "https://EXAMPLE.COM/page", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scope.InScope(mustParse(t, tt.url))
			if got != tt.want {
				t.Errorf("InScope(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestScope_InScope_WWWTarget(t *testing.T) {
	// A target given as www.example.com covers the bare domain too.
	scope, err := NewScope("www.example.com", nil)
	if err != nil {
		t.Fatalf("NewScope error: %v", err)
	}
	if !scope.InScope(mustParse(t, "https://example.com/page")) {
		t.Error("InScope(bare domain) = false for www target, want true")
	}
	if !scope.InScope(mustParse(t, "https://www.example.com/page")) {
		t.Error("InScope(www domain) = false for www target, want true")
	}
}

func TestScope_InScope_StaticExtensions(t *testing.T) {
	scope, err := NewScope("example.com", nil)
	if err != nil {
		t.Fatalf("NewScope error: %v", err)
	}

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"HTMLPage", "https://example.com/docs/page", true},
		{"PDF", "https://example.com/report.pdf", false},
		{"UppercasePDF", "https://example.com/REPORT.PDF", false},
		{"Image", "https://example.com/logo.png", false},
		{"Archive", "https://example.com/release.tar.gz", false},
		{"Stylesheet", "https://example.com/main.css", false},
		{"XMLFeed", "https://example.com/feed.xml", false},
		{"ExtensionInQuery", "https://example.com/download?file=a.pdf", true},
		{"HTMLExtension", "https://example.com/about.html", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scope.InScope(mustParse(t, tt.url))
			if got != tt.want {
				t.Errorf("InScope(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestScope_InScope_BlockedSegments(t *testing.T) {
	scope, err := NewScope("example.com", nil)
	if err != nil {
		t.Fatalf("NewScope error: %v", err)
	}

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"AdminRoot", "https://example.com/admin", false},
		{"AdminNested", "https://example.com/admin/settings", false},
		{"WPAdmin", "https://example.com/wp-admin/edit.php", false},
		{"Login", "https://example.com/login", false},
		{"UserProfile", "https://example.com/user/profile", false},
		{"Cart", "https://example.com/cart", false},
		{"Checkout", "https://example.com/shop/checkout", false},
		{"UppercaseAdmin", "https://example.com/ADMIN/panel", false},
		{"AdminSubstring", "https://example.com/administrators-guide", false}, // substring match is intentional
		{"ProductsPage", "https://example.com/products", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scope.InScope(mustParse(t, tt.url))
			if got != tt.want {
				t.Errorf("InScope(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestScope_InScope_ConfigPatterns(t *testing.T) {
	scope, err := NewScope("example.com", []string{`^/private/`, `\.tmp$`})
	if err != nil {
		t.Fatalf("NewScope error: %v", err)
	}

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"PrivateBlocked", "https://example.com/private/data", false},
		{"TmpBlocked", "https://example.com/cache/file.tmp", false},
		{"PublicAllowed", "https://example.com/public/data", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scope.InScope(mustParse(t, tt.url))
			if got != tt.want {
				t.Errorf("InScope(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestScope_InScope_NoPublicSuffixHosts(t *testing.T) {
	tests := []struct {
		name   string
		target string
		url    string
		want   bool
	}{
		{"Localhost", "localhost", "http://localhost/page", true},
		{"LocalhostWithPort", "localhost:8080", "http://localhost:9090/page", true},
		{"IPv4", "127.0.0.1", "http://127.0.0.1/page", true},
		{"IPv4WithPort", "127.0.0.1:8080", "http://127.0.0.1:8080/page", true},
		{"DifferentIPs", "10.0.0.1", "http://192.168.1.10/page", false},
		{"IPvsDomain", "127.0.0.1", "http://example.com/page", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, err := NewScope(tt.target, nil)
			if err != nil {
				t.Fatalf("NewScope(%q) error: %v", tt.target, err)
			}
			got := scope.InScope(mustParse(t, tt.url))
			if got != tt.want {
				t.Errorf("InScope(%q) for target %q = %v, want %v", tt.url, tt.target, got, tt.want)
			}
		})
	}
}

func TestScope_InScope_NilURL(t *testing.T) {
	scope, err := NewScope("example.com", nil)
	if err != nil {
		t.Fatalf("NewScope error: %v", err)
	}
	if scope.InScope(nil) {
		t.Error("InScope(nil) = true, want false")
	}
}
