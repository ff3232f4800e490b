package wire

import "sort"

// PDU is a decoded/to-be-encoded GIST message: the common header plus
// its ordered sequence of TLV objects (§4.1).
type PDU struct {
	Header  CommonHeader
	Objects []Object
}

// canonicalOrder is this repo's Open Question decision (SPEC_FULL.md
// "OPEN QUESTION DECISIONS" #1): RFC-5971 permits any object order;
// Encode is deterministic so that Decode∘Encode is testable as identity
// up to this fixed ordering (§8).
var canonicalOrder = map[ObjectType]int{
	TypeMRI:                    0,
	TypeSessionID:              1,
	TypeNLI:                    2,
	TypeStackProposal:          3,
	TypeStackConfigurationData: 4,
	TypeQueryCookie:            5,
	TypeResponderCookie:        6,
	TypeNATTraversal:           7,
	TypeNSLPData:               8,
	TypeErrorObject:            9,
}

func rankOf(o Object) int {
	if r, ok := canonicalOrder[o.ObjectType()]; ok {
		return r
	}
	return len(canonicalOrder) // unknown/raw objects sort last, stable
}

// mustUnderstandDefault/mandatoryToForwardDefault give each catalogued
// object type its default (A,B) bits (§4.1). MRI/SessionID are always
// must-understand: a GIST node that cannot parse the routing key cannot
// safely do anything else with the message.
var mustUnderstandDefault = map[ObjectType]bool{
	TypeMRI:                    true,
	TypeSessionID:              true,
	TypeNLI:                    true,
	TypeStackProposal:          true,
	TypeQueryCookie:            true,
	TypeResponderCookie:        true,
	TypeErrorObject:            true,
	TypeStackConfigurationData: false,
	TypeNATTraversal:           false,
	TypeNSLPData:               false,
}

// Encode serializes the common header followed by its objects in
// canonical order.
func (p PDU) Encode() []byte {
	objs := append([]Object(nil), p.Objects...)
	sort.SliceStable(objs, func(i, j int) bool { return rankOf(objs[i]) < rankOf(objs[j]) })

	var body []byte
	for _, o := range objs {
		a := mustUnderstandDefault[o.ObjectType()]
		b := !a // objects that aren't must-understand are forwarded untouched by default
		if raw, ok := o.(RawObject); ok {
			a, b = false, true
			o = raw
		}
		body = append(body, EncodeObject(o, a, b)...)
	}
	out := p.Header.Encode(len(body))
	out = append(out, body...)
	return out
}

// Decode parses a full PDU: common header then its TLV objects.
func Decode(buf []byte) (PDU, *ParseError) {
	hdr, bodyLen, perr := DecodeCommonHeader(buf)
	if perr != nil {
		return PDU{}, perr
	}
	body := buf[CommonHeaderSize : CommonHeaderSize+bodyLen]
	objs, perr := DecodeObjects(body)
	if perr != nil {
		return PDU{}, perr
	}
	return PDU{Header: hdr, Objects: objs}, nil
}

// EncodeQMode prefixes the Q-mode magic number ahead of the common
// header, for UDP Query encapsulation (§6).
func EncodeQMode(p PDU) []byte {
	magic := make([]byte, 4)
	putUint32(magic, QModeMagicNumber)
	return append(magic, p.Encode()...)
}

// DecodeQMode strips and checks the Q-mode magic number before decoding
// the PDU proper. A missing/garbled magic number is
// IncorrectEncapsulation (§4.6 step 1, §6).
func DecodeQMode(buf []byte) (PDU, *ParseError) {
	if len(buf) < 4 {
		return PDU{}, newParseError(0, ErrIncorrectEncapsulation, "buffer too short for Q-mode magic number")
	}
	if getUint32(buf[:4]) != QModeMagicNumber {
		return PDU{}, newParseError(0, ErrIncorrectEncapsulation, "missing GIST Q-mode magic number")
	}
	return Decode(buf[4:])
}

// Find returns the first object of the given type, or nil.
func (p PDU) Find(t ObjectType) Object {
	for _, o := range p.Objects {
		if o.ObjectType() == t {
			return o
		}
	}
	return nil
}

// MRI returns the PDU's routing-key MRI object, if present.
func (p PDU) MRI() (MRI, bool) {
	o := p.Find(TypeMRI)
	if o == nil {
		return MRI{}, false
	}
	m, ok := o.(MRI)
	return m, ok
}

// SessionID returns the PDU's Session Identifier, if present.
func (p PDU) SessionID() (SessionID, bool) {
	o := p.Find(TypeSessionID)
	if o == nil {
		return SessionID{}, false
	}
	s, ok := o.(SessionID)
	return s, ok
}

// NLI returns the PDU's Network-Layer Information object, if present.
func (p PDU) NLI() (NLI, bool) {
	o := p.Find(TypeNLI)
	if o == nil {
		return NLI{}, false
	}
	n, ok := o.(NLI)
	return n, ok
}
