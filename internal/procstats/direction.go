package procstats

import (
	"net/netip"

	"firestige.xyz/otus/internal/core"
)

// rfc1918 lists the private IPv4 ranges used by the direction policy.
var rfc1918 = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

func isPrivateV4(addr netip.Addr) bool {
	for _, p := range rfc1918 {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// isLocalScopeV6 treats loopback, unique-local (fc00::/7), and link-local
// (fe80::/10) as "local scope" per §4.5.
func isLocalScopeV6(addr netip.Addr) bool {
	if addr.IsLoopback() {
		return true
	}
	ula := netip.MustParsePrefix("fc00::/7")
	lla := netip.MustParsePrefix("fe80::/10")
	return ula.Contains(addr) || lla.Contains(addr)
}

// ClassifyDirection implements the direction policy from §4.5. IPv4:
// private→public is Outbound, public→private is Inbound, same-class ties
// break Outbound. IPv6: local-scope→public is Outbound, public→local is
// Inbound, otherwise Outbound. Mixed v4/v6 is always Outbound.
func ClassifyDirection(src, dst netip.Addr) core.PacketDirection {
	if src.Is4() && dst.Is4() {
		srcPrivate := isPrivateV4(src)
		dstPrivate := isPrivateV4(dst)
		switch {
		case srcPrivate && !dstPrivate:
			return core.DirectionOutbound
		case !srcPrivate && dstPrivate:
			return core.DirectionInbound
		default:
			return core.DirectionOutbound
		}
	}

	if src.Is6() && dst.Is6() && !src.Is4In6() && !dst.Is4In6() {
		srcLocal := isLocalScopeV6(src)
		dstLocal := isLocalScopeV6(dst)
		switch {
		case srcLocal && !dstLocal:
			return core.DirectionOutbound
		case !srcLocal && dstLocal:
			return core.DirectionInbound
		default:
			return core.DirectionOutbound
		}
	}

	return core.DirectionOutbound
}
