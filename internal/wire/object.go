package wire

import "encoding/binary"

// ObjectType is the 12-bit wire type carried in every TLV object header
// (§4.1 "Object catalogue").
type ObjectType uint16

const (
	TypeMRI ObjectType = iota + 1
	TypeSessionID
	TypeNLI
	TypeStackProposal
	TypeStackConfigurationData
	TypeQueryCookie
	TypeResponderCookie
	TypeNATTraversal
	TypeNSLPData
	TypeErrorObject
)

var objectTypeStr = map[ObjectType]string{
	TypeMRI:                    "MRI",
	TypeSessionID:              "SessionID",
	TypeNLI:                    "NLI",
	TypeStackProposal:          "StackProposal",
	TypeStackConfigurationData: "StackConfigurationData",
	TypeQueryCookie:            "QueryCookie",
	TypeResponderCookie:        "ResponderCookie",
	TypeNATTraversal:           "NAT-Traversal",
	TypeNSLPData:               "NSLP-Data",
	TypeErrorObject:            "Error",
}

func (t ObjectType) String() string {
	if s, ok := objectTypeStr[t]; ok {
		return s
	}
	return "Unknown"
}

// objectHeaderSize is the 32-bit TLV object header (§4.1): A(1) B(1)
// reserved(2) Type(12) Length(12) reserved(4), laid out big-endian.
const objectHeaderSize = 4

type objectHeader struct {
	A    bool // must-understand
	B    bool // mandatory-to-forward
	Type ObjectType
	// LengthWords is the object body length in 32-bit words, excluding
	// this header (§4.1).
	LengthWords int
}

func (h objectHeader) encode() []byte {
	var word uint32
	if h.A {
		word |= 1 << 31
	}
	if h.B {
		word |= 1 << 30
	}
	word |= (uint32(h.Type) & 0xfff) << 16
	word |= (uint32(h.LengthWords) & 0xfff) << 4
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, word)
	return buf
}

func decodeObjectHeader(buf []byte, offset int) (objectHeader, *ParseError) {
	if len(buf) < objectHeaderSize {
		return objectHeader{}, newParseError(offset, ErrObjectValueError,
			"object header needs %d bytes, got %d", objectHeaderSize, len(buf))
	}
	word := binary.BigEndian.Uint32(buf[:4])
	h := objectHeader{
		A:           word&(1<<31) != 0,
		B:           word&(1<<30) != 0,
		Type:        ObjectType((word >> 16) & 0xfff),
		LengthWords: int((word >> 4) & 0xfff),
	}
	return h, nil
}

// Object is any decoded/encodable GIST TLV object.
type Object interface {
	ObjectType() ObjectType
	// EncodeBody returns the object's value bytes, excluding the 4-byte
	// object header; callers pad/word-align via EncodeObject.
	EncodeBody() []byte
}

// decoderFunc parses an object's body (already isolated to its declared
// length) into a concrete Object.
type decoderFunc func(body []byte, offset int) (Object, *ParseError)

// typeRegistry is Design Note §9's "IE Manager, retained only as a
// registry table mapping Type -> encoder/decoder function pair" — a
// compile-time constant, not a runtime singleton.
var typeRegistry = map[ObjectType]decoderFunc{
	TypeMRI:                    decodeMRIObject,
	TypeSessionID:              decodeSessionID,
	TypeNLI:                    decodeNLI,
	TypeStackProposal:          decodeStackProposal,
	TypeStackConfigurationData: decodeStackConfigurationData,
	TypeQueryCookie:            decodeQueryCookie,
	TypeResponderCookie:        decodeResponderCookie,
	TypeNATTraversal:           decodeNATTraversal,
	TypeNSLPData:               decodeNSLPData,
	TypeErrorObject:            decodeErrorObject,
}

// EncodeObject wraps an object's body with its TLV header, word-padding
// the body first (§4.1: "lengths are 32-bit-word multiples").
func EncodeObject(o Object, mustUnderstand, mandatoryToForward bool) []byte {
	body := Pad4(o.EncodeBody())
	h := objectHeader{
		A:           mustUnderstand,
		B:           mandatoryToForward,
		Type:        o.ObjectType(),
		LengthWords: len(body) / 4,
	}
	out := h.encode()
	out = append(out, body...)
	return out
}

// DecodeObjects walks a PDU body decoding one TLV object at a time until
// the buffer is exhausted. Unknown types are handled per the (A,B) rule
// in §4.1: A=1 rejects with ObjectTypeError(unrecognised); A=0,B=0
// silently drops the object; A=0,B=1 keeps it as a RawObject so the
// caller can forward it untouched (§8: "A=0,B=1 unknown object survives
// a forwarding hop unchanged").
func DecodeObjects(buf []byte) ([]Object, *ParseError) {
	var objs []Object
	offset := 0
	for len(buf) > 0 {
		h, perr := decodeObjectHeader(buf, offset)
		if perr != nil {
			return nil, perr
		}
		bodyLen := h.LengthWords * 4
		if objectHeaderSize+bodyLen > len(buf) {
			return nil, newParseErrorSub(offset, ErrObjectValueError, int(SubIncorrectLength),
				"object type %s declares length %d beyond remaining PDU", h.Type, bodyLen)
		}
		body := buf[objectHeaderSize : objectHeaderSize+bodyLen]

		dec, known := typeRegistry[h.Type]
		switch {
		case known:
			obj, perr := dec(body, offset+objectHeaderSize)
			if perr != nil {
				return nil, perr
			}
			objs = append(objs, obj)
		case h.A:
			return nil, newParseErrorSub(offset, ErrObjectTypeError, int(SubUnrecognised),
				"unrecognised must-understand object type %d", h.Type)
		case h.B:
			objs = append(objs, RawObject{Type: h.Type, Body: append([]byte(nil), body...)})
		default:
			// A=0,B=0: silently ignore.
		}

		consumed := objectHeaderSize + bodyLen
		buf = buf[consumed:]
		offset += consumed
	}
	return objs, nil
}

// RawObject carries an unrecognised, forward-only (A=0,B=1) object
// verbatim (§4.1, §8).
type RawObject struct {
	Type ObjectType
	Body []byte
}

func (o RawObject) ObjectType() ObjectType { return o.Type }
func (o RawObject) EncodeBody() []byte     { return o.Body }
