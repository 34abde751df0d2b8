package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"

	"golang.org/x/net/http/httpproxy"
)

// ErrPrivateAddress is returned when a URL resolves to a loopback, private,
// link-local or otherwise non-public address.
var ErrPrivateAddress = errors.New("destination address is not public")

// nonPublicPrefixes are ranges netip has no predicate for.
var nonPublicPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"), // carrier-grade NAT
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("64:ff9b:1::/48"),
}

// IsPublicAddr reports whether addr is a globally routable unicast address.
func IsPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() || !addr.IsGlobalUnicast() {
		return false
	}
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
		return false
	}
	for _, p := range nonPublicPrefixes {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}

// addressGuard keeps fetches away from internal networks. Direct connections
// are checked at dial time, after DNS resolution, so redirects and rebinding
// are covered. When a proxy dials for us the host is resolved and checked
// before the request instead.
type addressGuard struct {
	proxy    func(*http.Request) (*url.URL, error)
	resolver *net.Resolver
}

// dialControl rejects connections to non-public addresses.
func dialControl(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, address)
	}
	if !IsPublicAddr(ap.Addr()) {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, ap.Addr())
	}
	return nil
}

// check vets the destination of req before it is sent.
func (g *addressGuard) check(req *http.Request) error {
	host := strings.TrimSuffix(strings.ToLower(req.URL.Hostname()), ".")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, host)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if !IsPublicAddr(addr) {
			return fmt.Errorf("%w: %s", ErrPrivateAddress, addr)
		}
		return nil
	}

	proxyURL, err := g.proxy(req)
	if err != nil || proxyURL == nil {
		return nil
	}
	return g.checkResolved(req.Context(), host)
}

func (g *addressGuard) checkResolved(ctx context.Context, host string) error {
	addrs, err := g.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, addr := range addrs {
		if !IsPublicAddr(addr) {
			return fmt.Errorf("%w: %s resolves to %s", ErrPrivateAddress, host, addr)
		}
	}
	return nil
}

// proxyConfigured reports whether requests may leave through a proxy, in
// which case the dialer only ever sees the proxy's address.
func proxyConfigured(opts Options) bool {
	if opts.HTTPProxy != "" || opts.HTTPSProxy != "" {
		return true
	}
	env := httpproxy.FromEnvironment()
	return env.HTTPProxy != "" || env.HTTPSProxy != ""
}
