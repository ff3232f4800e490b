package wire

import (
	"encoding/binary"
	"net"
)

// MRIKind discriminates the two Message Routing Methods GIST defines
// (§3 "Message Routing Information").
type MRIKind uint8

const (
	MRIPathCoupled MRIKind = iota
	MRILooseEnd
)

// Direction is the routing-entry direction flag D carried inside the MRI
// (§3: "direction flag D ∈ {downstream=0, upstream=1}").
type Direction uint8

const (
	DirDownstream Direction = iota
	DirUpstream
)

// MRI is GIST's Message Routing Information object: a tagged union over
// PC-MRM and LE-MRM (§3). Rather than two Go types implementing a common
// interface, MRI is one struct with a Kind discriminant and
// variant-specific fields left zero when unused — this mirrors how
// encoding/ngap represents CHOICE types it only partially implements
// (e.g. GlobalRANNodeID: one flat struct, a const selecting the active
// arm) rather than introducing a Go interface for a two-case union.
type MRI struct {
	Kind         MRIKind
	Direction    Direction
	NATTraversed bool // flag N, PC-MRM only (§3)
	IPv6         bool

	SrcIP net.IP
	DstIP net.IP

	// PC-MRM only.
	SrcPrefixLen uint8
	DstPrefixLen uint8
	Protocol     uint8
	DSField      uint8
	FlowLabel    uint32 // low 20 bits significant
	SPI          uint32
	SrcPort      uint16
	DstPort      uint16
}

func (m MRI) ObjectType() ObjectType { return TypeMRI }

const (
	mriFlagIPv6      = 0x01
	mriFlagDirection = 0x02
	mriFlagNAT       = 0x04
)

func ipBytes(ip net.IP, v6 bool) []byte {
	if v6 {
		b := ip.To16()
		if b == nil {
			b = make([]byte, 16)
		}
		return b
	}
	b := ip.To4()
	if b == nil {
		b = make([]byte, 4)
	}
	return b
}

// EncodeBody lays out the MRI body as: subtype(1) flags(1) then, for
// PC-MRM, SrcPrefixLen(1) DstPrefixLen(1) Protocol(1) DSField(1)
// reserved(1) FlowLabel(4, low 20 bits) SPI(4) SrcPort(2) DstPort(2),
// then SrcIP/DstIP (4 or 16 bytes each per the IPv6 flag). LE-MRM is
// just subtype+flags followed by SrcIP/DstIP.
func (m MRI) EncodeBody() []byte {
	var flags uint8
	if m.IPv6 {
		flags |= mriFlagIPv6
	}
	if m.Direction == DirUpstream {
		flags |= mriFlagDirection
	}
	if m.NATTraversed {
		flags |= mriFlagNAT
	}

	buf := []byte{uint8(m.Kind), flags}

	if m.Kind == MRIPathCoupled {
		buf = append(buf, m.SrcPrefixLen, m.DstPrefixLen, m.Protocol, m.DSField, 0)
		fl := make([]byte, 4)
		binary.BigEndian.PutUint32(fl, m.FlowLabel&0xfffff)
		buf = append(buf, fl...)
		spi := make([]byte, 4)
		binary.BigEndian.PutUint32(spi, m.SPI)
		buf = append(buf, spi...)
		ports := make([]byte, 4)
		binary.BigEndian.PutUint16(ports[0:2], m.SrcPort)
		binary.BigEndian.PutUint16(ports[2:4], m.DstPort)
		buf = append(buf, ports...)
	}

	buf = append(buf, ipBytes(m.SrcIP, m.IPv6)...)
	buf = append(buf, ipBytes(m.DstIP, m.IPv6)...)
	return buf
}

func decodeMRIObject(body []byte, offset int) (Object, *ParseError) {
	if len(body) < 2 {
		return nil, newParseErrorSub(offset, ErrObjectValueError, int(SubIncorrectLength),
			"MRI body too short")
	}
	m := MRI{
		Kind: MRIKind(body[0]),
	}
	flags := body[1]
	m.IPv6 = flags&mriFlagIPv6 != 0
	if flags&mriFlagDirection != 0 {
		m.Direction = DirUpstream
	}
	m.NATTraversed = flags&mriFlagNAT != 0

	rest := body[2:]
	ipLen := 4
	if m.IPv6 {
		ipLen = 16
	}

	switch m.Kind {
	case MRIPathCoupled:
		const fixed = 1 + 1 + 1 + 1 + 1 + 4 + 4 + 2 + 2
		if len(rest) < fixed+2*ipLen {
			return nil, newParseErrorSub(offset, ErrObjectValueError, int(SubIncorrectLength),
				"PC-MRI body too short")
		}
		m.SrcPrefixLen = rest[0]
		m.DstPrefixLen = rest[1]
		m.Protocol = rest[2]
		m.DSField = rest[3]
		// rest[4] reserved
		m.FlowLabel = binary.BigEndian.Uint32(rest[5:9]) & 0xfffff
		m.SPI = binary.BigEndian.Uint32(rest[9:13])
		m.SrcPort = binary.BigEndian.Uint16(rest[13:15])
		m.DstPort = binary.BigEndian.Uint16(rest[15:17])
		rest = rest[fixed:]
	case MRILooseEnd:
		if len(rest) < 2*ipLen {
			return nil, newParseErrorSub(offset, ErrObjectValueError, int(SubIncorrectLength),
				"LE-MRI body too short")
		}
	default:
		return nil, newParseErrorSub(offset, ErrObjectValueError, int(SubInvalid),
			"unknown MRI kind %d", body[0])
	}

	m.SrcIP = append(net.IP(nil), rest[:ipLen]...)
	m.DstIP = append(net.IP(nil), rest[ipLen:2*ipLen]...)
	return m, nil
}

// Equal implements the routing-key equality §3 defines: "MRIs compare
// by all populated fields".
func (m MRI) Equal(o MRI) bool {
	if m.Kind != o.Kind || m.Direction != o.Direction || m.IPv6 != o.IPv6 || m.NATTraversed != o.NATTraversed {
		return false
	}
	if !m.SrcIP.Equal(o.SrcIP) || !m.DstIP.Equal(o.DstIP) {
		return false
	}
	if m.Kind == MRILooseEnd {
		return true
	}
	return m.SrcPrefixLen == o.SrcPrefixLen &&
		m.DstPrefixLen == o.DstPrefixLen &&
		m.Protocol == o.Protocol &&
		m.DSField == o.DSField &&
		m.FlowLabel == o.FlowLabel &&
		m.SPI == o.SPI &&
		m.SrcPort == o.SrcPort &&
		m.DstPort == o.DstPort
}

// CanonicalKey returns a byte-stable encoding suitable for hashing in
// the routing table's primary index (§4.3: "hash of the normalised
// MRI"). It deliberately reuses EncodeBody: two equal MRIs always
// produce the same wire bytes.
func (m MRI) CanonicalKey() string {
	return string(m.EncodeBody())
}
