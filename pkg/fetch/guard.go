package fetch

import (
	"context"
	"net"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/devseo/siteaudit/pkg/utils"
)

// blockedCIDRs are the address ranges an audit must never touch: private,
// loopback, link-local and unique-local space. Audits take arbitrary
// user-supplied domains, so anything resolving here is refused.
var blockedCIDRs = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
}

var blockedNetworks = mustParseCIDRs(blockedCIDRs)

func mustParseCIDRs(cidrs []string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("fetch: invalid built-in CIDR " + cidr)
		}
		networks = append(networks, network)
	}
	return networks
}

// Resolver is the subset of net.Resolver the guard needs. Injected so tests
// can fake DNS answers without touching the network.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Guard decides whether a URL is safe to fetch. It fails closed: a host
// that cannot be resolved is treated as unsafe.
type Guard struct {
	resolver Resolver
	log      *logrus.Entry
}

// NewGuard creates a Guard. A nil resolver means net.DefaultResolver.
func NewGuard(resolver Resolver, log *logrus.Entry) *Guard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Guard{resolver: resolver, log: log}
}

// IsSafe returns nil when every address u's host maps to lies outside the
// blocked ranges. A literal IP host is checked directly; a hostname is
// resolved and ALL returned addresses must be safe. Errors wrap
// utils.ErrUnsafeTarget.
func (g *Guard) IsSafe(ctx context.Context, u *url.URL) error {
	host := u.Hostname()
	if host == "" {
		return utils.WrapErrorf(utils.ErrUnsafeTarget, "no host in %q", u.String())
	}

	if ip := net.ParseIP(host); ip != nil {
		if network := blockedNetwork(ip); network != "" {
			return utils.WrapErrorf(utils.ErrUnsafeTarget, "%s is in blocked range %s", ip, network)
		}
		return nil
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		// Fail closed: no answer means no fetch.
		return utils.WrapErrorf(utils.ErrUnsafeTarget, "resolving %q failed (%v)", host, err)
	}
	if len(addrs) == 0 {
		return utils.WrapErrorf(utils.ErrUnsafeTarget, "%q resolved to no addresses", host)
	}
	for _, addr := range addrs {
		if network := blockedNetwork(addr.IP); network != "" {
			g.log.WithFields(logrus.Fields{"host": host, "ip": addr.IP.String()}).Warn("Target resolves into blocked address space")
			return utils.WrapErrorf(utils.ErrUnsafeTarget, "%q resolves to %s in blocked range %s", host, addr.IP, network)
		}
	}
	return nil
}

// blockedNetwork returns the CIDR that contains ip, or "" when ip is safe.
func blockedNetwork(ip net.IP) string {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return network.String()
		}
	}
	return ""
}
