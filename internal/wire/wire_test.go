package wire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gist/internal/wireid"
)

func samplePDU(t *testing.T) PDU {
	t.Helper()
	mri := MRI{
		Kind:      MRIPathCoupled,
		Direction: DirDownstream,
		IPv6:      false,
		SrcIP:     net.ParseIP("198.51.100.1"),
		DstIP:     net.ParseIP("198.51.100.2"),
		Protocol:  17,
		SrcPort:   4000,
		DstPort:   80,
	}
	sid := SessionID{ID: wireid.New()}
	nli := NLI{
		PeerIdentity:       wireid.New(),
		InterfaceAddress:   net.ParseIP("198.51.100.1"),
		ValidityTimeMillis: 30000,
		ObservedIPTTL:      64,
	}
	sp := StackProposal{Profiles: []Profile{{MAProtoTCP}, {MAProtoTLS, MAProtoSCTP}}}
	qc := QueryCookie{Value: []byte{1, 2, 3, 4, 5, 6, 7, 8}}

	return PDU{
		Header: CommonHeader{
			Version:  GISTVersion,
			HopCount: 64,
			NSLPID:   1,
			Type:     PDUQuery,
			Flags:    Flags{R: true, S: true},
		},
		Objects: []Object{qc, sp, nli, sid, mri},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := samplePDU(t)
	buf := p.Encode()

	got, perr := Decode(buf)
	require.Nil(t, perr)

	require.Equal(t, PDUQuery, got.Header.Type)
	require.Equal(t, uint8(64), got.Header.HopCount)
	require.True(t, got.Header.Flags.R)
	require.True(t, got.Header.Flags.S)

	gotMRI, ok := got.MRI()
	require.True(t, ok)
	assert.True(t, gotMRI.Equal(p.Objects[4].(MRI)))

	gotSID, ok := got.SessionID()
	require.True(t, ok)
	assert.Equal(t, p.Objects[3].(SessionID).ID, gotSID.ID)

	gotNLI, ok := got.NLI()
	require.True(t, ok)
	assert.Equal(t, p.Objects[2].(NLI).PeerIdentity, gotNLI.PeerIdentity)
}

func TestEncodeIsCanonicallyOrdered(t *testing.T) {
	p := samplePDU(t)
	buf := p.Encode()
	got, perr := Decode(buf)
	require.Nil(t, perr)

	var order []ObjectType
	for _, o := range got.Objects {
		order = append(order, o.ObjectType())
	}
	assert.Equal(t, []ObjectType{TypeMRI, TypeSessionID, TypeNLI, TypeStackProposal, TypeQueryCookie}, order)
}

func TestDecodeEncodeIdempotentUpToOrdering(t *testing.T) {
	p := samplePDU(t)
	buf1 := p.Encode()
	decoded1, perr := Decode(buf1)
	require.Nil(t, perr)

	buf2 := decoded1.Encode()
	assert.Equal(t, buf1, buf2)
}

func TestTruncatedCommonHeaderIsParseError(t *testing.T) {
	_, perr := Decode([]byte{1, 2, 3})
	require.NotNil(t, perr)
	assert.Equal(t, ErrCommonHeaderParse, perr.Code)
}

func TestDeclaredLengthBeyondBufferIsRejected(t *testing.T) {
	p := samplePDU(t)
	buf := p.Encode()
	truncated := buf[:len(buf)-8]

	_, perr := Decode(truncated)
	require.NotNil(t, perr)
}

func TestUnrecognisedMustUnderstandObjectTypeErrors(t *testing.T) {
	hdr := CommonHeader{Version: GISTVersion, Type: PDUData, Flags: Flags{}}
	body := objectHeader{A: true, B: false, Type: ObjectType(4000), LengthWords: 1}.encode()
	body = append(body, []byte{0, 0, 0, 0}...)
	buf := append(hdr.Encode(len(body)), body...)

	_, perr := Decode(buf)
	require.NotNil(t, perr)
	assert.Equal(t, ErrObjectTypeError, perr.Code)
	assert.Equal(t, int(SubUnrecognised), perr.Subcode)
}

func TestUnrecognisedForwardableObjectSurvivesAsRaw(t *testing.T) {
	hdr := CommonHeader{Version: GISTVersion, Type: PDUData, Flags: Flags{}}
	body := objectHeader{A: false, B: true, Type: ObjectType(4000), LengthWords: 1}.encode()
	body = append(body, []byte{9, 9, 9, 9}...)
	buf := append(hdr.Encode(len(body)), body...)

	got, perr := Decode(buf)
	require.Nil(t, perr)
	require.Len(t, got.Objects, 1)
	raw, ok := got.Objects[0].(RawObject)
	require.True(t, ok)
	assert.Equal(t, ObjectType(4000), raw.Type)
	assert.Equal(t, []byte{9, 9, 9, 9}, raw.Body)

	// Re-encoding a message carrying only an unrecognised object must
	// forward it unchanged (§8).
	reencoded := got.Encode()
	again, perr := Decode(reencoded)
	require.Nil(t, perr)
	require.Len(t, again.Objects, 1)
	assert.Equal(t, raw, again.Objects[0])
}

func TestUnrecognisedSilentObjectIsDropped(t *testing.T) {
	hdr := CommonHeader{Version: GISTVersion, Type: PDUData, Flags: Flags{}}
	body := objectHeader{A: false, B: false, Type: ObjectType(4000), LengthWords: 1}.encode()
	body = append(body, []byte{1, 1, 1, 1}...)
	buf := append(hdr.Encode(len(body)), body...)

	got, perr := Decode(buf)
	require.Nil(t, perr)
	assert.Empty(t, got.Objects)
}

func TestIllegalFlagsRejected(t *testing.T) {
	hdr := CommonHeader{Version: GISTVersion, Type: PDUResponse, Flags: Flags{R: true}}
	buf := hdr.Encode(0)

	_, _, perr := DecodeCommonHeader(buf)
	require.NotNil(t, perr)
}

func TestQModeEncapsulation(t *testing.T) {
	p := samplePDU(t)
	buf := EncodeQMode(p)

	got, perr := DecodeQMode(buf)
	require.Nil(t, perr)
	assert.Equal(t, PDUQuery, got.Header.Type)

	_, perr = DecodeQMode(buf[1:])
	require.NotNil(t, perr)
	assert.Equal(t, ErrIncorrectEncapsulation, perr.Code)
}

func TestMRIEqualityComparesAllPopulatedFields(t *testing.T) {
	a := MRI{Kind: MRIPathCoupled, SrcIP: net.ParseIP("10.0.0.1"), DstIP: net.ParseIP("10.0.0.2"), Protocol: 6}
	b := a
	assert.True(t, a.Equal(b))

	b.Protocol = 17
	assert.False(t, a.Equal(b))
}

func TestErrorObjectRoundTrip(t *testing.T) {
	offending := CommonHeader{Version: GISTVersion, Type: PDUQuery, Flags: Flags{R: true, S: true}}
	mri := MRI{Kind: MRILooseEnd, SrcIP: net.ParseIP("203.0.113.1"), DstIP: net.ParseIP("203.0.113.2")}
	eo := ErrorObject{
		Class:           ErrClassPermanent,
		Code:            ErrNoRoutingState,
		Subcode:         -1,
		OffendingHeader: offending,
		OffendingMRI:    &mri,
	}
	encoded := EncodeObject(eo, true, false)

	objs, perr := DecodeObjects(encoded)
	require.Nil(t, perr)
	require.Len(t, objs, 1)
	got := objs[0].(ErrorObject)
	assert.Equal(t, ErrNoRoutingState, got.Code)
	require.NotNil(t, got.OffendingMRI)
	assert.True(t, got.OffendingMRI.Equal(mri))
}
