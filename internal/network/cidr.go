package network

import (
	"net/netip"

	appErr "github.com/iac-studio/envforge/pkg/errors"
)

// SubnetBits is the prefix length of every project subnet.
const SubnetBits = 24

// nextFreePrefix returns the first /SubnetBits block of parent that does
// not overlap any of used.
func nextFreePrefix(parent string, used []string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(parent)
	if err != nil {
		return netip.Prefix{}, appErr.Wrap(err, appErr.CodeInvalid, "invalid vpc cidr")
	}
	p = p.Masked()
	if !p.Addr().Is4() || p.Bits() > SubnetBits {
		return netip.Prefix{}, appErr.Newf(appErr.CodeInvalid, "vpc cidr %s cannot hold a /%d", p, SubnetBits)
	}

	taken := make([]netip.Prefix, 0, len(used))
	for _, u := range used {
		if up, err := netip.ParsePrefix(u); err == nil {
			taken = append(taken, up.Masked())
		}
	}

	step := uint32(1) << (32 - SubnetBits)
	base := p.Addr().As4()
	start := uint32(base[0])<<24 | uint32(base[1])<<16 | uint32(base[2])<<8 | uint32(base[3])
	blocks := uint32(1) << (SubnetBits - p.Bits())

	for i := uint32(0); i < blocks; i++ {
		n := start + i*step
		candidate := netip.PrefixFrom(netip.AddrFrom4([4]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}), SubnetBits)
		free := true
		for _, t := range taken {
			if t.Overlaps(candidate) {
				free = false
				break
			}
		}
		if free {
			return candidate, nil
		}
	}
	return netip.Prefix{}, appErr.Newf(appErr.CodeUnavailable, "no free /%d left in %s", SubnetBits, p)
}
