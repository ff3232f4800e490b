package transport

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// InterfaceAddress is one discovered local IPv4/IPv6 address that GIST
// may advertise as NLI.InterfaceAddress (§3 "Network-Layer
// Information").
type InterfaceAddress struct {
	IfName string
	IP     net.IP
	IPv6   bool
}

// LocalAddresses enumerates the addresses bound to the named
// interface, grounded on gnbsim's netlink address-listing idiom
// (cmd/gnbsim_netlink.go addIPv4Address: LinkByName then AddrList).
// Unlike the teacher, which only ever adds an address, this is
// read-only discovery: GIST never provisions interfaces, only learns
// what address to put in outgoing NLI objects.
func LocalAddresses(ifName string) ([]InterfaceAddress, error) {
	link, err := netlink.LinkByName(ifName)
	if err != nil {
		return nil, fmt.Errorf("transport: resolving interface %s: %w", ifName, err)
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return nil, fmt.Errorf("transport: listing addresses on %s: %w", ifName, err)
	}

	out := make([]InterfaceAddress, 0, len(addrs))
	for _, a := range addrs {
		if a.IPNet == nil {
			continue
		}
		out = append(out, InterfaceAddress{
			IfName: ifName,
			IP:     a.IPNet.IP,
			IPv6:   a.IPNet.IP.To4() == nil,
		})
	}
	return out, nil
}

// OutboundInterfaceFor picks the interface the kernel would route a
// packet to dst out of, by asking netlink for the matching route's
// link. Used when a PC-MRI's destination determines which local
// interface address to advertise in NLI.
func OutboundInterfaceFor(dst net.IP) (InterfaceAddress, error) {
	routes, err := netlink.RouteGet(dst)
	if err != nil {
		return InterfaceAddress{}, fmt.Errorf("transport: routing to %s: %w", dst, err)
	}
	if len(routes) == 0 {
		return InterfaceAddress{}, fmt.Errorf("transport: no route to %s", dst)
	}
	link, err := netlink.LinkByIndex(routes[0].LinkIndex)
	if err != nil {
		return InterfaceAddress{}, fmt.Errorf("transport: resolving link %d: %w", routes[0].LinkIndex, err)
	}
	addrs, err := LocalAddresses(link.Attrs().Name)
	if err != nil {
		return InterfaceAddress{}, err
	}
	if len(addrs) == 0 {
		return InterfaceAddress{}, fmt.Errorf("transport: interface %s has no addresses", link.Attrs().Name)
	}
	if routes[0].Src != nil {
		for _, a := range addrs {
			if a.IP.Equal(routes[0].Src) {
				return a, nil
			}
		}
	}
	return addrs[0], nil
}
