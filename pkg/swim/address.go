package swim

import (
	"fmt"
	"net"
	"net/netip"
)

// Address identifies a node by its IP and port.
type Address = netip.AddrPort

// ParseAddress parses a 'host:port' address. The host must be an IP address.
func ParseAddress(s string) (Address, error) {
	addr, err := netip.ParseAddrPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("parse address: %s: %w", s, err)
	}
	return NormalizeAddress(addr), nil
}

// AddressFromUDP converts a UDP address to an Address.
func AddressFromUDP(addr *net.UDPAddr) Address {
	return NormalizeAddress(addr.AddrPort())
}

// NormalizeAddress unmaps IPv4-mapped IPv6 addresses so the same node always
// has the same key in the membership table.
func NormalizeAddress(addr Address) Address {
	return netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
}
