package wire

import "fmt"

// ErrorCode enumerates the decoder's structured parse/semantic error
// classes (§4.1 "Decoder contract", §7 "Error codes").
type ErrorCode int

const (
	ErrCommonHeaderParse ErrorCode = iota
	ErrIncorrectEncapsulation
	ErrObjectTypeError
	ErrObjectValueError
	ErrMessageTooLarge
	ErrHopLimitExceeded
	ErrIncorrectlyDeliveredMessage
	ErrNoRoutingState
	ErrUnknownNSLPID
	ErrEndpointFound
	ErrInvalidIPTTL
	ErrMRIValidationFailed
)

var errCodeStr = map[ErrorCode]string{
	ErrCommonHeaderParse:           "CommonHeaderParseError",
	ErrIncorrectEncapsulation:      "IncorrectEncapsulation",
	ErrObjectTypeError:             "ObjectTypeError",
	ErrObjectValueError:            "ObjectValueError",
	ErrMessageTooLarge:             "MessageTooLarge",
	ErrHopLimitExceeded:            "HopLimitExceeded",
	ErrIncorrectlyDeliveredMessage: "IncorrectlyDeliveredMessage",
	ErrNoRoutingState:              "NoRoutingState",
	ErrUnknownNSLPID:               "UnknownNSLPID",
	ErrEndpointFound:               "EndpointFound",
	ErrInvalidIPTTL:                "InvalidIPTTL",
	ErrMRIValidationFailed:         "MRIValidationFailed",
}

func (c ErrorCode) String() string {
	if s, ok := errCodeStr[c]; ok {
		return s
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// ObjectTypeErrorSubcode and ObjectValueErrorSubcode enumerate the
// subcodes §4.1 attaches to ObjectTypeError/ObjectValueError.
type ObjectTypeErrorSubcode int

const (
	SubDuplicate ObjectTypeErrorSubcode = iota
	SubUnrecognised
	SubMissing
	SubInvalid
	SubUntranslated
	SubInvalidExtFlags
)

type ObjectValueErrorSubcode int

const (
	SubIncorrectLength ObjectValueErrorSubcode = iota
	SubValueNotSupported
	SubInvalidFlag
	SubEmptyList
	SubInvalidCookie
	SubSPSCPMismatch
)

// ParseError identifies the first offending byte offset and the error
// class/subcode, per §4.1's decoder contract.
type ParseError struct {
	Offset  int
	Code    ErrorCode
	Subcode int // interpreted against Code's subcode enum, -1 if none
	Msg     string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("wire: %s at offset %d: %s", e.Code, e.Offset, e.Msg)
}

func newParseError(offset int, code ErrorCode, format string, args ...interface{}) *ParseError {
	return &ParseError{Offset: offset, Code: code, Subcode: -1, Msg: fmt.Sprintf(format, args...)}
}

func newParseErrorSub(offset int, code ErrorCode, subcode int, format string, args ...interface{}) *ParseError {
	return &ParseError{Offset: offset, Code: code, Subcode: subcode, Msg: fmt.Sprintf(format, args...)}
}
