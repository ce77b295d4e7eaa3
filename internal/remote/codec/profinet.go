package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PROFINET IO real-time frame constants.
const (
	// PNIOFrameID is the RT class 1 cyclic frame id used for every message.
	PNIOFrameID uint16 = 0x8000

	// PNIODataStatusGood marks the data valid, the provider running and the
	// frame primary.
	PNIODataStatusGood byte = 0x35

	pnioMaxReason = 255
	pnioTrailer   = 4
)

// PNIO frames a message as a PROFINET RT cyclic frame.
//
// Frame layout:
//
//	Byte 0-1:   Frame ID (0x8000)
//	Byte 2-3:   Command
//	Byte 4-11:  Value as IEEE-754 float64
//	Byte 12:    Reason length (at most 255)
//	Byte 13+:   Reason
//	Trailer:    Cycle counter(2) = Sequence, Data status(1), Transfer status(1)
type PNIO struct{}

// Protocol returns Profinet.
func (PNIO) Protocol() Protocol { return Profinet }

// Encode builds the RT frame. Reasons over 255 bytes are truncated.
func (PNIO) Encode(msg Message) ([]byte, error) {
	reason := msg.Reason
	if len(reason) > pnioMaxReason {
		reason = reason[:pnioMaxReason]
	}
	frame := make([]byte, 13+len(reason)+pnioTrailer)
	binary.BigEndian.PutUint16(frame[0:2], PNIOFrameID)
	binary.BigEndian.PutUint16(frame[2:4], uint16(msg.Command))
	binary.BigEndian.PutUint64(frame[4:12], math.Float64bits(msg.Value))
	frame[12] = byte(len(reason))
	copy(frame[13:], reason)

	t := frame[13+len(reason):]
	binary.BigEndian.PutUint16(t[0:2], msg.Sequence)
	t[2] = PNIODataStatusGood
	t[3] = 0
	return frame, nil
}

// Decode parses a frame produced by Encode.
func (PNIO) Decode(frame []byte) (Message, error) {
	if len(frame) < 13+pnioTrailer {
		return Message{}, fmt.Errorf("%w: profinet %d bytes", ErrFrameTooShort, len(frame))
	}
	if id := binary.BigEndian.Uint16(frame[0:2]); id != PNIOFrameID {
		return Message{}, fmt.Errorf("%w: profinet frame id 0x%04X", ErrInvalidFrame, id)
	}
	n := int(frame[12])
	if len(frame) != 13+n+pnioTrailer {
		return Message{}, fmt.Errorf("%w: profinet reason length %d", ErrInvalidFrame, n)
	}
	t := frame[13+n:]
	if t[2] != PNIODataStatusGood {
		return Message{}, fmt.Errorf("%w: profinet data status 0x%02X", ErrInvalidFrame, t[2])
	}
	return Message{
		Command:  Command(binary.BigEndian.Uint16(frame[2:4])),
		Value:    math.Float64frombits(binary.BigEndian.Uint64(frame[4:12])),
		Reason:   string(frame[13 : 13+n]),
		Sequence: binary.BigEndian.Uint16(t[0:2]),
	}, nil
}
