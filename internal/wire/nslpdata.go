package wire

// NSLPData carries the opaque payload handed down from the NSLP above
// GIST (§4.7 "SendMessage"/"RecvMessage").
type NSLPData struct {
	Data []byte
}

func (d NSLPData) ObjectType() ObjectType { return TypeNSLPData }
func (d NSLPData) EncodeBody() []byte     { return d.Data }

func decodeNSLPData(body []byte, offset int) (Object, *ParseError) {
	return NSLPData{Data: append([]byte(nil), body...)}, nil
}
