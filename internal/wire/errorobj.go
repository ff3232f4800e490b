package wire

// ErrorClass mirrors the wire Error Object's severity classes (§7).
type ErrorClass uint8

const (
	ErrClassInformational ErrorClass = iota
	ErrClassSuccess
	ErrClassProtocol
	ErrClassTransient
	ErrClassPermanent
)

// ErrorObject is the wire Error Object: a copy of the offending common
// header and MRI plus the error code/subcode that explains the failure
// (§4.6 "Errors", §7).
type ErrorObject struct {
	Class             ErrorClass
	Code              ErrorCode
	Subcode           int
	OffendingHeader   CommonHeader
	OffendingMRI      *MRI // nil if the offending PDU carried none
}

func (e ErrorObject) ObjectType() ObjectType { return TypeErrorObject }

func (e ErrorObject) EncodeBody() []byte {
	buf := []byte{uint8(e.Class), uint8(e.Code)}
	sc := int16(e.Subcode)
	scBuf := make([]byte, 2)
	putUint16(scBuf, uint16(sc))
	buf = append(buf, scBuf...)
	buf = append(buf, e.OffendingHeader.Encode(0)...)
	if e.OffendingMRI != nil {
		buf = append(buf, 1)
		buf = append(buf, e.OffendingMRI.EncodeBody()...)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func decodeErrorObject(body []byte, offset int) (Object, *ParseError) {
	const fixed = 1 + 1 + 2 + CommonHeaderSize + 1
	if len(body) < fixed {
		return nil, newParseErrorSub(offset, ErrObjectValueError, int(SubIncorrectLength),
			"Error object body too short")
	}
	e := ErrorObject{
		Class:   ErrorClass(body[0]),
		Code:    ErrorCode(body[1]),
		Subcode: int(int16(getUint16(body[2:4]))),
	}
	hdr, _, perr := DecodeCommonHeader(body[4 : 4+CommonHeaderSize])
	if perr != nil {
		return nil, perr
	}
	e.OffendingHeader = hdr
	hasMRI := body[4+CommonHeaderSize]
	if hasMRI != 0 {
		mriObj, perr := decodeMRIObject(body[fixed:], offset+fixed)
		if perr != nil {
			return nil, perr
		}
		m := mriObj.(MRI)
		e.OffendingMRI = &m
	}
	return e, nil
}
