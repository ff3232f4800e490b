package wire

import "encoding/binary"

func putUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func getUint32(b []byte) uint32    { return binary.BigEndian.Uint32(b) }
func putUint16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func getUint16(b []byte) uint16    { return binary.BigEndian.Uint16(b) }
