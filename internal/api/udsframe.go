package api

import (
	"encoding/binary"
	"fmt"

	"gist/internal/statemachine"
	"gist/internal/wire"
	"gist/internal/wireid"
)

// Frame is the fixed-layout packed structure the UDS API boundary
// carries, one frame per §4.7 primitive (§6 "UDS API surface"). Unlike
// the GIST wire codec proper, which is big-endian network byte order,
// frame fields are little-endian on host: this boundary never leaves
// the machine, so there is no interop reason to pay byteswap cost.
//
// Layout (all integers little-endian):
//
//	primitive        uint8
//	nslpID           uint16
//	sid              [16]byte
//	flags            uint8   (bit 0: reliability, bit 1: security, bit 2: local-processing,
//	                           bit 3: install-routing-state, bit 4: explicitly-routed,
//	                           bit 5: no-GIST-state)
//	statusErrorType  uint8
//	notifyKind       uint8
//	ipTTL            uint8
//	ipDistance       int32
//	gistHopCount     uint8
//	nslpMessageHandle [16]byte
//	siiHandleLen     uint16
//	siiHandle        []byte
//	nslpDataLen      uint32
//	nslpData         []byte
//	mriLen           uint32
//	mri              []byte (GIST wire encoding of the MRI object)
type Frame struct {
	Primitive         Primitive
	NSLPID            uint16
	SID               wireid.ID
	Reliability       bool
	Security          bool
	LocalProcessing   bool
	InstallRouting    bool
	ExplicitlyRouted  bool
	NoGISTState       bool
	StatusErrorType   statemachine.StatusErrorType
	NotifyKind        statemachine.NotificationKind
	IPTTL             uint8
	IPDistance        int32
	GISTHopCount      uint8
	NSLPMessageHandle wireid.ID
	SIIHandle         string
	NSLPData          []byte
	MRI               []byte
}

// Primitive discriminates which of §4.7's four calls a Frame carries.
type Primitive uint8

const (
	PrimitiveSendMessage Primitive = iota + 1
	PrimitiveRecvMessage
	PrimitiveMessageStatus
	PrimitiveNetworkNotification
)

const (
	flagReliability     = 1 << 0
	flagSecurity        = 1 << 1
	flagLocalProcessing = 1 << 2
	flagInstallRouting  = 1 << 3
	flagExplicitlyRoute = 1 << 4
	flagNoGISTState     = 1 << 5
)

// Encode packs f into its wire layout.
func (f Frame) Encode() []byte {
	var flags byte
	if f.Reliability {
		flags |= flagReliability
	}
	if f.Security {
		flags |= flagSecurity
	}
	if f.LocalProcessing {
		flags |= flagLocalProcessing
	}
	if f.InstallRouting {
		flags |= flagInstallRouting
	}
	if f.ExplicitlyRouted {
		flags |= flagExplicitlyRoute
	}
	if f.NoGISTState {
		flags |= flagNoGISTState
	}

	sii := []byte(f.SIIHandle)
	buf := make([]byte, 0, 64+len(sii)+len(f.NSLPData)+len(f.MRI))

	buf = append(buf, byte(f.Primitive))
	buf = appendU16(buf, f.NSLPID)
	buf = append(buf, f.SID.Bytes()...)
	buf = append(buf, flags)
	buf = append(buf, byte(f.StatusErrorType))
	buf = append(buf, byte(f.NotifyKind))
	buf = append(buf, f.IPTTL)
	buf = appendI32(buf, f.IPDistance)
	buf = append(buf, f.GISTHopCount)
	buf = append(buf, f.NSLPMessageHandle.Bytes()...)
	buf = appendU16(buf, uint16(len(sii)))
	buf = append(buf, sii...)
	buf = appendU32(buf, uint32(len(f.NSLPData)))
	buf = append(buf, f.NSLPData...)
	buf = appendU32(buf, uint32(len(f.MRI)))
	buf = append(buf, f.MRI...)
	return buf
}

// DecodeFrame unpacks a Frame from its wire layout.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	r := cursor{b: b}

	prim, err := r.u8()
	if err != nil {
		return f, fmt.Errorf("api: frame: primitive: %w", err)
	}
	f.Primitive = Primitive(prim)

	nslpID, err := r.u16()
	if err != nil {
		return f, fmt.Errorf("api: frame: nslp id: %w", err)
	}
	f.NSLPID = nslpID

	sid, err := r.bytes(16)
	if err != nil {
		return f, fmt.Errorf("api: frame: sid: %w", err)
	}
	f.SID, err = wireid.FromBytes(sid)
	if err != nil {
		return f, fmt.Errorf("api: frame: sid: %w", err)
	}

	flags, err := r.u8()
	if err != nil {
		return f, fmt.Errorf("api: frame: flags: %w", err)
	}
	f.Reliability = flags&flagReliability != 0
	f.Security = flags&flagSecurity != 0
	f.LocalProcessing = flags&flagLocalProcessing != 0
	f.InstallRouting = flags&flagInstallRouting != 0
	f.ExplicitlyRouted = flags&flagExplicitlyRoute != 0
	f.NoGISTState = flags&flagNoGISTState != 0

	statusErr, err := r.u8()
	if err != nil {
		return f, fmt.Errorf("api: frame: status error type: %w", err)
	}
	f.StatusErrorType = statemachine.StatusErrorType(statusErr)

	notifyKind, err := r.u8()
	if err != nil {
		return f, fmt.Errorf("api: frame: notify kind: %w", err)
	}
	f.NotifyKind = statemachine.NotificationKind(notifyKind)

	f.IPTTL, err = r.u8()
	if err != nil {
		return f, fmt.Errorf("api: frame: ip ttl: %w", err)
	}
	f.IPDistance, err = r.i32()
	if err != nil {
		return f, fmt.Errorf("api: frame: ip distance: %w", err)
	}
	f.GISTHopCount, err = r.u8()
	if err != nil {
		return f, fmt.Errorf("api: frame: gist hop count: %w", err)
	}

	handle, err := r.bytes(16)
	if err != nil {
		return f, fmt.Errorf("api: frame: nslp message handle: %w", err)
	}
	f.NSLPMessageHandle, err = wireid.FromBytes(handle)
	if err != nil {
		return f, fmt.Errorf("api: frame: nslp message handle: %w", err)
	}

	siiLen, err := r.u16()
	if err != nil {
		return f, fmt.Errorf("api: frame: sii handle length: %w", err)
	}
	sii, err := r.bytes(int(siiLen))
	if err != nil {
		return f, fmt.Errorf("api: frame: sii handle: %w", err)
	}
	f.SIIHandle = string(sii)

	ndLen, err := r.u32()
	if err != nil {
		return f, fmt.Errorf("api: frame: nslp data length: %w", err)
	}
	nd, err := r.bytes(int(ndLen))
	if err != nil {
		return f, fmt.Errorf("api: frame: nslp data: %w", err)
	}
	f.NSLPData = append([]byte(nil), nd...)

	mriLen, err := r.u32()
	if err != nil {
		return f, fmt.Errorf("api: frame: mri length: %w", err)
	}
	mri, err := r.bytes(int(mriLen))
	if err != nil {
		return f, fmt.Errorf("api: frame: mri: %w", err)
	}
	f.MRI = append([]byte(nil), mri...)

	return f, nil
}

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendI32(b []byte, v int32) []byte {
	return appendU32(b, uint32(v))
}

// cursor is a minimal little-endian reader over a frame's remaining
// bytes, mirroring the cursor-style reader internal/wire uses for the
// (big-endian) GIST wire codec.
type cursor struct {
	b   []byte
	off int
}

var errShortFrame = fmt.Errorf("short frame")

func (c *cursor) need(n int) error {
	if len(c.b)-c.off < n {
		return errShortFrame
	}
	return nil
}

func (c *cursor) u8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.b[c.off]
	c.off++
	return v, nil
}

func (c *cursor) u16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.b[c.off:])
	c.off += 2
	return v, nil
}

func (c *cursor) u32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.b[c.off:])
	c.off += 4
	return v, nil
}

func (c *cursor) i32() (int32, error) {
	v, err := c.u32()
	return int32(v), err
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	v := c.b[c.off : c.off+n]
	c.off += n
	return v, nil
}

// recvMetaFromFrame reconstructs statemachine.RecvMeta from a decoded
// Frame's wire fields.
func recvMetaFromFrame(f Frame) statemachine.RecvMeta {
	return statemachine.RecvMeta{
		ExplicitlyRouted: f.ExplicitlyRouted,
		NoGISTState:      f.NoGISTState,
		IPTTL:            f.IPTTL,
		IPDistance:       int(f.IPDistance),
		GISTHopCount:     f.GISTHopCount,
		SIIHandle:        f.SIIHandle,
	}
}

// sendOptionsFromFrame reconstructs statemachine.SendOptions from a
// decoded Frame's wire fields.
func sendOptionsFromFrame(f Frame) statemachine.SendOptions {
	return statemachine.SendOptions{
		Reliability:         f.Reliability,
		Security:            f.Security,
		LocalProcessing:     f.LocalProcessing,
		InstallRoutingState: f.InstallRouting,
		IPTTL:               f.IPTTL,
		GISTHopCount:        f.GISTHopCount,
		NSLPMessageHandle:   f.NSLPMessageHandle,
		SIIHandle:           f.SIIHandle,
	}
}

// decodeMRI parses a Frame's embedded MRI bytes using the GIST wire
// codec's own TLV object decoder, keeping one source of truth for the
// MRI layout instead of duplicating it across the API boundary.
func decodeMRI(b []byte) (wire.MRI, error) {
	objs, perr := wire.DecodeObjects(b)
	if perr != nil {
		return wire.MRI{}, perr
	}
	if len(objs) != 1 {
		return wire.MRI{}, fmt.Errorf("api: frame: expected exactly one MRI object, got %d", len(objs))
	}
	mri, ok := objs[0].(wire.MRI)
	if !ok {
		return wire.MRI{}, fmt.Errorf("api: frame: expected MRI object, got %T", objs[0])
	}
	return mri, nil
}

// encodeMRI serializes an MRI using the GIST wire codec's own TLV
// encoder, for embedding into a Frame.
func encodeMRI(mri wire.MRI) []byte {
	return wire.EncodeObject(mri, true, false)
}
