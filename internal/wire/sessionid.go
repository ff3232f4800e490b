package wire

import "gist/internal/wireid"

// SessionID carries the 128-bit Session Identifier (§3 "Session
// Identifier").
type SessionID struct {
	ID wireid.ID
}

func (s SessionID) ObjectType() ObjectType { return TypeSessionID }
func (s SessionID) EncodeBody() []byte     { return s.ID.Bytes() }

func decodeSessionID(body []byte, offset int) (Object, *ParseError) {
	if len(body) < 16 {
		return nil, newParseErrorSub(offset, ErrObjectValueError, int(SubIncorrectLength),
			"SessionID body must be 16 bytes, got %d", len(body))
	}
	id, err := wireid.FromBytes(body[:16])
	if err != nil {
		return nil, newParseErrorSub(offset, ErrObjectValueError, int(SubInvalid), "%v", err)
	}
	return SessionID{ID: id}, nil
}
