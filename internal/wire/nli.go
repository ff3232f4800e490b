package wire

import (
	"encoding/binary"
	"net"

	"gist/internal/wireid"
)

// NLI is the Network-Layer Information object (§3 "Network-Layer
// Information"): a peer's identity, the interface address it is
// reachable on, how long it promises to hold routing state, and the
// IP-TTL the sender observed on its own inbound packet.
type NLI struct {
	PeerIdentity       wireid.ID
	InterfaceAddress   net.IP
	IPv6               bool
	ValidityTimeMillis uint32
	ObservedIPTTL      uint8
}

func (n NLI) ObjectType() ObjectType { return TypeNLI }

func (n NLI) EncodeBody() []byte {
	buf := n.PeerIdentity.Bytes() // 16 bytes

	var flags uint8
	if n.IPv6 {
		flags = 1
	}
	buf = append(buf, flags, n.ObservedIPTTL)

	vt := make([]byte, 4)
	binary.BigEndian.PutUint32(vt, n.ValidityTimeMillis)
	buf = append(buf, vt...)

	buf = append(buf, ipBytes(n.InterfaceAddress, n.IPv6)...)
	return buf
}

func decodeNLI(body []byte, offset int) (Object, *ParseError) {
	const fixed = 16 + 1 + 1 + 4
	if len(body) < fixed+4 {
		return nil, newParseErrorSub(offset, ErrObjectValueError, int(SubIncorrectLength),
			"NLI body too short")
	}
	id, err := wireid.FromBytes(body[:16])
	if err != nil {
		return nil, newParseErrorSub(offset, ErrObjectValueError, int(SubInvalid), "%v", err)
	}
	n := NLI{PeerIdentity: id}
	n.IPv6 = body[16]&0x01 != 0
	n.ObservedIPTTL = body[17]
	n.ValidityTimeMillis = binary.BigEndian.Uint32(body[18:22])

	ipLen := 4
	if n.IPv6 {
		ipLen = 16
	}
	if len(body) < fixed+ipLen {
		return nil, newParseErrorSub(offset, ErrObjectValueError, int(SubIncorrectLength),
			"NLI interface address truncated")
	}
	n.InterfaceAddress = append(net.IP(nil), body[fixed:fixed+ipLen]...)
	return n, nil
}
