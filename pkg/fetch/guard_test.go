package fetch

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/devseo/siteaudit/pkg/utils"
)

// fakeResolver returns canned answers without touching DNS.
type fakeResolver struct {
	addrs map[string][]string // host -> IPs
	err   error
}

func (f *fakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	if f.err != nil {
		return nil, f.err
	}
	ips, ok := f.addrs[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	var out []net.IPAddr
	for _, ip := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out, nil
}

func testGuard(resolver Resolver) *Guard {
	return NewGuard(resolver, logrus.NewEntry(testLogger()))
}

func TestGuard_LiteralIPs(t *testing.T) {
	tests := []struct {
		name string
		url  string
		safe bool
	}{
		{"PublicIPv4", "http://93.184.216.34/", true},
		{"Loopback", "http://127.0.0.1/", false},
		{"LoopbackHigh", "http://127.8.8.8/", false},
		{"PrivateTen", "http://10.1.2.3/", false},
		{"PrivateTwenty", "http://172.16.0.5/", false},
		{"PrivateTwentyUpperEdge", "http://172.31.255.255/", false},
		{"OutsideTwentyRange", "http://172.32.0.1/", true},
		{"PrivateOneNinetyTwo", "http://192.168.1.1/", false},
		{"LinkLocal", "http://169.254.169.254/", false},
		{"IPv6Loopback", "http://[::1]/", false},
		{"IPv6UniqueLocal", "http://[fc00::1]/", false},
		{"IPv6UniqueLocalFD", "http://[fd12:3456::1]/", false},
		{"IPv6Public", "http://[2606:2800:220:1:248:1893:25c8:1946]/", true},
	}

	guard := testGuard(&fakeResolver{}) // literal IPs never hit the resolver

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.url)
			if err != nil {
				t.Fatalf("url.Parse(%q): %v", tt.url, err)
			}
			got := guard.IsSafe(context.Background(), u)
			if tt.safe && got != nil {
				t.Errorf("IsSafe(%q) = %v, want nil", tt.url, got)
			}
			if !tt.safe {
				if got == nil {
					t.Fatalf("IsSafe(%q) = nil, want error", tt.url)
				}
				if !errors.Is(got, utils.ErrUnsafeTarget) {
					t.Errorf("IsSafe(%q) error %v does not wrap ErrUnsafeTarget", tt.url, got)
				}
			}
		})
	}
}

func TestGuard_HostnameResolvingToLoopback(t *testing.T) {
	resolver := &fakeResolver{addrs: map[string][]string{
		"internal.example.com": {"127.0.0.1"},
	}}
	guard := testGuard(resolver)

	u, _ := url.Parse("https://internal.example.com/page")
	err := guard.IsSafe(context.Background(), u)
	if err == nil {
		t.Fatal("expected error for host resolving to loopback")
	}
	if !errors.Is(err, utils.ErrUnsafeTarget) {
		t.Errorf("error %v does not wrap ErrUnsafeTarget", err)
	}
}

func TestGuard_MixedResolutionIsUnsafe(t *testing.T) {
	// One public and one private answer: DNS rebinding style. Any blocked
	// address taints the host.
	resolver := &fakeResolver{addrs: map[string][]string{
		"sneaky.example.com": {"93.184.216.34", "10.0.0.8"},
	}}
	guard := testGuard(resolver)

	u, _ := url.Parse("https://sneaky.example.com/")
	if err := guard.IsSafe(context.Background(), u); err == nil {
		t.Fatal("expected error when any resolved address is blocked")
	}
}

func TestGuard_PublicHostname(t *testing.T) {
	resolver := &fakeResolver{addrs: map[string][]string{
		"example.com": {"93.184.216.34"},
	}}
	guard := testGuard(resolver)

	u, _ := url.Parse("https://example.com/")
	if err := guard.IsSafe(context.Background(), u); err != nil {
		t.Fatalf("IsSafe(public host) = %v, want nil", err)
	}
}

func TestGuard_ResolutionFailureFailsClosed(t *testing.T) {
	guard := testGuard(&fakeResolver{}) // knows no hosts

	u, _ := url.Parse("https://does-not-resolve.example.com/")
	err := guard.IsSafe(context.Background(), u)
	if err == nil {
		t.Fatal("expected error when resolution fails")
	}
	if !errors.Is(err, utils.ErrUnsafeTarget) {
		t.Errorf("error %v does not wrap ErrUnsafeTarget", err)
	}
}

func TestGuard_EmptyHost(t *testing.T) {
	guard := testGuard(&fakeResolver{})

	u := &url.URL{Scheme: "https", Path: "/no-host"}
	if err := guard.IsSafe(context.Background(), u); err == nil {
		t.Fatal("expected error for URL without host")
	}
}
