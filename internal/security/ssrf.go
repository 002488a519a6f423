package security

import (
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"websearch-mcp/internal/domain"
)

// blockedPrefixes lists private, loopback, link-local and otherwise
// reserved ranges that user-supplied URLs may not reach.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("ff00::/8"),
}

// IsPrivateAddr reports whether addr falls within a blocked range.
// IPv4-mapped IPv6 addresses are checked as IPv4.
func IsPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// DialControl rejects connections to private or reserved addresses. It sees
// the resolved address being dialed. Use it as net.Dialer.Control.
func DialControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return domain.NewDomainError("security.Dial", domain.ErrBlockedAddress, fmt.Sprintf("invalid address %q", address))
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return domain.NewDomainError("security.Dial", domain.ErrBlockedAddress, fmt.Sprintf("unparsable address %q", host))
	}
	if IsPrivateAddr(addr) {
		return domain.NewDomainError("security.Dial", domain.ErrBlockedAddress,
			fmt.Sprintf("%s is private/reserved", addr))
	}
	return nil
}
