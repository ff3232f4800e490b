package wire

// MAProtocol identifies a messaging-association transport protocol a
// StackProposal profile can name (§4.5).
type MAProtocol uint8

const (
	MAProtoTCP MAProtocol = iota + 1
	MAProtoTLS
	MAProtoSCTP
)

var maProtocolStr = map[MAProtocol]string{
	MAProtoTCP:  "TCP",
	MAProtoTLS:  "TLS-over-TCP",
	MAProtoSCTP: "SCTP",
}

func (p MAProtocol) String() string {
	if s, ok := maProtocolStr[p]; ok {
		return s
	}
	return "Unknown"
}

// Profile is an ordered list of MA-protocol-identifiers (§4.5).
type Profile []MAProtocol

// StackProposal is an ordered list of profiles (§4.5 "A StackProposal is
// an ordered list of profiles").
type StackProposal struct {
	Profiles []Profile
}

func (s StackProposal) ObjectType() ObjectType { return TypeStackProposal }

// EncodeBody: profileCount(1) then, per profile, protoCount(1) followed
// by that many MAProtocol bytes.
func (s StackProposal) EncodeBody() []byte {
	buf := []byte{uint8(len(s.Profiles))}
	for _, p := range s.Profiles {
		buf = append(buf, uint8(len(p)))
		for _, proto := range p {
			buf = append(buf, uint8(proto))
		}
	}
	return buf
}

func decodeStackProposal(body []byte, offset int) (Object, *ParseError) {
	if len(body) < 1 {
		return nil, newParseErrorSub(offset, ErrObjectValueError, int(SubIncorrectLength),
			"StackProposal body empty")
	}
	n := int(body[0])
	if n == 0 {
		return nil, newParseErrorSub(offset, ErrObjectValueError, int(SubEmptyList),
			"StackProposal carries an empty profile list")
	}
	rest := body[1:]
	sp := StackProposal{}
	for i := 0; i < n; i++ {
		if len(rest) < 1 {
			return nil, newParseErrorSub(offset, ErrObjectValueError, int(SubIncorrectLength),
				"StackProposal truncated at profile %d", i)
		}
		count := int(rest[0])
		rest = rest[1:]
		if len(rest) < count {
			return nil, newParseErrorSub(offset, ErrObjectValueError, int(SubIncorrectLength),
				"StackProposal profile %d truncated", i)
		}
		profile := make(Profile, count)
		for j := 0; j < count; j++ {
			profile[j] = MAProtocol(rest[j])
		}
		sp.Profiles = append(sp.Profiles, profile)
		rest = rest[count:]
	}
	return sp, nil
}

// StackConfigurationData carries per-profile MA tuning parameters
// (§4.1). GIST leaves its content mostly implementation-defined; this
// repo uses it to advertise the MA-hold-time the sender applies to
// associations it owns, the one piece of configuration §6 calls out
// by name as something peers may want to learn.
type StackConfigurationData struct {
	MAHoldTimeMillis uint32
}

func (s StackConfigurationData) ObjectType() ObjectType { return TypeStackConfigurationData }

func (s StackConfigurationData) EncodeBody() []byte {
	buf := make([]byte, 4)
	putUint32(buf, s.MAHoldTimeMillis)
	return buf
}

func decodeStackConfigurationData(body []byte, offset int) (Object, *ParseError) {
	if len(body) < 4 {
		return nil, newParseErrorSub(offset, ErrObjectValueError, int(SubIncorrectLength),
			"StackConfigurationData body too short")
	}
	return StackConfigurationData{MAHoldTimeMillis: getUint32(body)}, nil
}
