// Package wire implements the bit-exact GIST wire codec: the common
// header (§4.1, §6) and the catalogue of TLV objects it carries (MRI,
// SessionID, NLI, StackProposal, StackConfigurationData, QueryCookie,
// ResponderCookie, NAT-Traversal, NSLP-Data and Error), plus the Hello
// PDU type.
//
// Byte layout follows encoding/gtp's header-encoding idiom (plain
// encoding/binary field writes against a growing []byte, a cursor-style
// reader over the remaining slice) rather than encoding/ngap's ASN.1 PER
// bit-packing: GIST objects are byte/word-aligned TLVs, never sub-byte
// bit fields, so there is no BitField-style machinery here.
package wire

import (
	"encoding/binary"
	"fmt"
)

// PDU types (§4.6, §6). GIST defines five message kinds over the common
// header plus the Hello keepalive this repo's SPEC_FULL adds (see
// SPEC_FULL.md "GIST-Hello / MA keepalive").
type PDUType uint8

const (
	PDUQuery PDUType = iota + 1
	PDUResponse
	PDUConfirm
	PDUData
	PDUError
	PDUHello
)

var pduTypeStr = map[PDUType]string{
	PDUQuery:    "Query",
	PDUResponse: "Response",
	PDUConfirm:  "Confirm",
	PDUData:     "Data",
	PDUError:    "Error",
	PDUHello:    "Hello",
}

func (t PDUType) String() string {
	if s, ok := pduTypeStr[t]; ok {
		return s
	}
	return fmt.Sprintf("PDUType(%d)", uint8(t))
}

// Flags holds the common header's R/S/E bits (§3 Invariant 6, §6).
type Flags struct {
	R bool // response-requested
	S bool // SID-in-msg
	E bool // explicit-routing
}

const (
	flagR = 0x80
	flagS = 0x40
	flagE = 0x20
)

func (f Flags) encode() byte {
	var b byte
	if f.R {
		b |= flagR
	}
	if f.S {
		b |= flagS
	}
	if f.E {
		b |= flagE
	}
	return b
}

func decodeFlags(b byte) Flags {
	return Flags{
		R: b&flagR != 0,
		S: b&flagS != 0,
		E: b&flagE != 0,
	}
}

// legalFlags enforces §3 Invariant 6: per PDU type, which of R/S/E may
// legally be set. Decode rejects a PDU whose flags violate this table
// with ObjectValueError(invalid-flag).
var legalFlags = map[PDUType]Flags{
	PDUQuery:    {R: true, S: true, E: true},
	PDUResponse: {R: false, S: true, E: true},
	PDUConfirm:  {R: false, S: true, E: true},
	PDUData:     {R: true, S: true, E: true},
	PDUError:    {R: false, S: true, E: false},
	PDUHello:    {R: true, S: false, E: false},
}

func (f Flags) legalFor(t PDUType) bool {
	allowed, ok := legalFlags[t]
	if !ok {
		return false
	}
	if f.R && !allowed.R {
		return false
	}
	if f.S && !allowed.S {
		return false
	}
	if f.E && !allowed.E {
		return false
	}
	return true
}

// CommonHeaderSize is the fixed 12-byte GIST common header (§4.1, §6).
const CommonHeaderSize = 12

// QModeMagicNumber precedes the common header for Q-mode-encapsulated
// Query PDUs (§6 "Query encapsulation").
const QModeMagicNumber uint32 = 0x4e04bda5

// GISTVersion is the only version this codec speaks (§6 "Version=1").
const GISTVersion uint8 = 1

// CommonHeader is GIST's 12-byte fixed preamble (§4.1).
type CommonHeader struct {
	Version  uint8
	HopCount uint8
	NSLPID   uint16
	Type     PDUType
	Flags    Flags
	// LengthWords is recomputed by Encode from the object bytes that
	// follow; callers never need to set it by hand.
	LengthWords uint16
}

// Encode writes the 12-byte common header followed by length. The word
// count covers everything after the common header (§4.1: "message length
// in 32-bit words").
func (h CommonHeader) Encode(bodyLen int) []byte {
	buf := make([]byte, CommonHeaderSize)
	buf[0] = h.Version
	buf[1] = h.HopCount
	binary.BigEndian.PutUint16(buf[2:4], wordsFor(bodyLen))
	binary.BigEndian.PutUint16(buf[4:6], h.NSLPID)
	buf[6] = byte(h.Type)
	buf[7] = h.Flags.encode()
	// buf[8:12] reserved, left zero.
	return buf
}

// wordsFor rounds a byte length up to the nearest 32-bit word count
// (§4.1: "All lengths are 32-bit-word multiples with zero padding").
func wordsFor(n int) uint16 {
	return uint16((n + 3) / 4)
}

// Pad4 zero-pads b up to the next 32-bit word boundary.
func Pad4(b []byte) []byte {
	if rem := len(b) % 4; rem != 0 {
		b = append(b, make([]byte, 4-rem)...)
	}
	return b
}

// DecodeCommonHeader parses the fixed 12-byte preamble. A short buffer
// yields CommonHeaderParseError (§4.1, §8 "Truncated common header").
func DecodeCommonHeader(buf []byte) (CommonHeader, int, *ParseError) {
	if len(buf) < CommonHeaderSize {
		return CommonHeader{}, 0, newParseError(0, ErrCommonHeaderParse,
			"common header needs %d bytes, got %d", CommonHeaderSize, len(buf))
	}
	h := CommonHeader{
		Version:  buf[0],
		HopCount: buf[1],
	}
	words := binary.BigEndian.Uint16(buf[2:4])
	h.NSLPID = binary.BigEndian.Uint16(buf[4:6])
	h.Type = PDUType(buf[6])
	h.Flags = decodeFlags(buf[7])
	h.LengthWords = words

	if h.Version != GISTVersion {
		return CommonHeader{}, 0, newParseError(0, ErrCommonHeaderParse,
			"unsupported GIST version %d", h.Version)
	}
	if !h.Flags.legalFor(h.Type) {
		return CommonHeader{}, 0, newParseError(7, ErrObjectValueError,
			"flags %+v illegal for PDU type %s", h.Flags, h.Type)
	}
	bodyLen := int(words) * 4
	if bodyLen > len(buf)-CommonHeaderSize {
		return CommonHeader{}, 0, newParseError(2, ErrObjectValueError,
			"declared length %d overruns buffer", bodyLen)
	}
	return h, bodyLen, nil
}
