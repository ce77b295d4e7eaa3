package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// EtherNet/IP encapsulation constants.
const (
	enipHeaderSize = 24

	// ENIPSendUnitData is the encapsulation command for connected data.
	ENIPSendUnitData uint16 = 0x0070

	enipFixedPayload = 2 + 2 + 8 + 8 + 2
)

// ENIP frames a message behind an EtherNet/IP encapsulation header.
//
// Frame layout (little-endian, as EtherNet/IP is):
//
//	Byte 0-1:   Command (0x0070 SendUnitData)
//	Byte 2-3:   Payload length
//	Byte 4-7:   Session handle
//	Byte 8-11:  Status (0)
//	Byte 12-19: Sender context (Sequence in the first two bytes)
//	Byte 20-23: Options (0)
//	Payload:    Command(2) Sequence(2) Value(8) UnixNano(8) ReasonLen(2) Reason
type ENIP struct {
	Session uint32
}

// Protocol returns EtherNetIP.
func (ENIP) Protocol() Protocol { return EtherNetIP }

// Encode builds the encapsulated frame.
func (e ENIP) Encode(msg Message) ([]byte, error) {
	if len(msg.Reason) > math.MaxUint16-enipFixedPayload {
		return nil, fmt.Errorf("%w: enip reason too long", ErrInvalidFrame)
	}
	payloadLen := enipFixedPayload + len(msg.Reason)
	frame := make([]byte, enipHeaderSize+payloadLen)

	binary.LittleEndian.PutUint16(frame[0:2], ENIPSendUnitData)
	binary.LittleEndian.PutUint16(frame[2:4], uint16(payloadLen)) //nolint:gosec // bounded above
	binary.LittleEndian.PutUint32(frame[4:8], e.Session)
	binary.LittleEndian.PutUint16(frame[12:14], msg.Sequence)

	p := frame[enipHeaderSize:]
	binary.LittleEndian.PutUint16(p[0:2], uint16(msg.Command))
	binary.LittleEndian.PutUint16(p[2:4], msg.Sequence)
	binary.LittleEndian.PutUint64(p[4:12], math.Float64bits(msg.Value))
	binary.LittleEndian.PutUint64(p[12:20], uint64(unixNano(msg.Timestamp))) //nolint:gosec // round-trips via int64
	binary.LittleEndian.PutUint16(p[20:22], uint16(len(msg.Reason)))       //nolint:gosec // bounded above
	copy(p[22:], msg.Reason)
	return frame, nil
}

// Decode parses a frame produced by Encode.
func (ENIP) Decode(frame []byte) (Message, error) {
	if len(frame) < enipHeaderSize+enipFixedPayload {
		return Message{}, fmt.Errorf("%w: enip %d bytes", ErrFrameTooShort, len(frame))
	}
	if cmd := binary.LittleEndian.Uint16(frame[0:2]); cmd != ENIPSendUnitData {
		return Message{}, fmt.Errorf("%w: enip command 0x%04X", ErrInvalidFrame, cmd)
	}
	if status := binary.LittleEndian.Uint32(frame[8:12]); status != 0 {
		return Message{}, fmt.Errorf("%w: enip status 0x%08X", ErrInvalidFrame, status)
	}
	length := int(binary.LittleEndian.Uint16(frame[2:4]))
	p := frame[enipHeaderSize:]
	if len(p) < length {
		return Message{}, fmt.Errorf("%w: enip payload %d bytes, header says %d", ErrFrameTooShort, len(p), length)
	}
	reasonLen := int(binary.LittleEndian.Uint16(p[20:22]))
	if enipFixedPayload+reasonLen > length {
		return Message{}, fmt.Errorf("%w: enip reason length %d", ErrInvalidFrame, reasonLen)
	}
	return Message{
		Command:   Command(binary.LittleEndian.Uint16(p[0:2])),
		Sequence:  binary.LittleEndian.Uint16(p[2:4]),
		Value:     math.Float64frombits(binary.LittleEndian.Uint64(p[4:12])),
		Timestamp: fromUnixNano(int64(binary.LittleEndian.Uint64(p[12:20]))), //nolint:gosec // round-trips via int64
		Reason:    string(p[22 : 22+reasonLen]),
	}, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
