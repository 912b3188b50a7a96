package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// ErrBlockedUpstream marks an upstream URL refused in production.
var ErrBlockedUpstream = errors.New("upstream not allowed")

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// CheckUpstream validates the base URL of a collaborator the server calls
// (the order backend, the Pi Platform). Outside production any http(s)
// URL with a host passes. In production it must be https and every address
// the host resolves to must be publicly routable.
func CheckUpstream(rawURL string, production bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return checkUpstream(ctx, net.DefaultResolver, rawURL, production)
}

func checkUpstream(ctx context.Context, r Resolver, rawURL string, production bool) error {
	u, err := url.Parse(rawURL)
	switch {
	case err != nil:
		return fmt.Errorf("invalid URL %q", rawURL)
	case u.Scheme != "https" && u.Scheme != "http":
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	case u.Hostname() == "":
		return fmt.Errorf("URL %q has no host", rawURL)
	}
	if !production {
		return nil
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: %s must use https in production", ErrBlockedUpstream, u.Host)
	}

	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("%w: %s", ErrBlockedUpstream, host)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return publicAddr(host, addr)
	}

	addrs, err := r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, addr := range addrs {
		if err := publicAddr(host, addr); err != nil {
			return err
		}
	}
	return nil
}

func publicAddr(host string, addr netip.Addr) error {
	addr = addr.Unmap()
	var kind string
	switch {
	case addr.IsLoopback():
		kind = "loopback"
	case addr.IsPrivate():
		kind = "private"
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		kind = "link-local"
	case addr.IsUnspecified():
		kind = "unspecified"
	default:
		return nil
	}
	return fmt.Errorf("%w: %s resolves to %s address %s", ErrBlockedUpstream, host, kind, addr)
}
