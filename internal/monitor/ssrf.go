package monitor

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// metadataHosts are cloud instance-metadata endpoints. They stay blocked even
// when private targets are allowed.
var metadataHosts = map[string]bool{
	"169.254.169.254":          true,
	"169.254.170.2":            true,
	"fd00:ec2::254":            true,
	"metadata.google.internal": true,
}

var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// Resolver looks up the addresses of a host.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// SSRFProtection rejects service URLs that point into the server's own network.
type SSRFProtection struct {
	allowPrivateIPs bool
	resolver        Resolver
}

// NewSSRFProtection creates a validator using the default resolver.
func NewSSRFProtection(allowPrivateIPs bool) *SSRFProtection {
	return &SSRFProtection{allowPrivateIPs: allowPrivateIPs, resolver: net.DefaultResolver}
}

// WithResolver replaces the resolver, mostly for tests.
func (s *SSRFProtection) WithResolver(r Resolver) *SSRFProtection {
	s.resolver = r
	return s
}

// ValidateURL checks the scheme and every address the host resolves to.
func (s *SSRFProtection) ValidateURL(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("only http and https schemes are allowed")
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return fmt.Errorf("URL must have a hostname")
	}
	if metadataHosts[host] {
		return fmt.Errorf("access to metadata endpoints is not allowed")
	}
	if s.allowPrivateIPs {
		return nil
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("access to localhost is not allowed")
	}

	var addrs []netip.Addr
	if ip, err := netip.ParseAddr(host); err == nil {
		addrs = []netip.Addr{ip}
	} else {
		addrs, err = s.resolver.LookupNetIP(ctx, "ip", host)
		if err != nil {
			return fmt.Errorf("failed to resolve hostname: %w", err)
		}
		if len(addrs) == 0 {
			return fmt.Errorf("hostname does not resolve to any IP address")
		}
	}

	for _, addr := range addrs {
		if err := checkAddr(addr.Unmap()); err != nil {
			return fmt.Errorf("IP address %s is not allowed: %w", addr, err)
		}
	}
	return nil
}

func checkAddr(addr netip.Addr) error {
	switch {
	case addr.IsLoopback():
		return fmt.Errorf("loopback address")
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return fmt.Errorf("link-local address")
	case addr.IsMulticast():
		return fmt.Errorf("multicast address")
	case addr.IsUnspecified():
		return fmt.Errorf("unspecified address")
	}
	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return fmt.Errorf("private address")
		}
	}
	return nil
}
