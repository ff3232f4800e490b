package wire

// NATTraversal carries the original (pre-NAT) MRI and a hop count of
// NATs already crossed (§4.8 "NAT Traversal Fix-up").
type NATTraversal struct {
	OriginalMRI MRI
	NATCount    uint8
}

func (n NATTraversal) ObjectType() ObjectType { return TypeNATTraversal }

func (n NATTraversal) EncodeBody() []byte {
	buf := []byte{n.NATCount}
	buf = append(buf, n.OriginalMRI.EncodeBody()...)
	return buf
}

func decodeNATTraversal(body []byte, offset int) (Object, *ParseError) {
	if len(body) < 1 {
		return nil, newParseErrorSub(offset, ErrObjectValueError, int(SubIncorrectLength),
			"NAT-Traversal body empty")
	}
	mriObj, perr := decodeMRIObject(body[1:], offset+1)
	if perr != nil {
		return nil, perr
	}
	return NATTraversal{OriginalMRI: mriObj.(MRI), NATCount: body[0]}, nil
}
