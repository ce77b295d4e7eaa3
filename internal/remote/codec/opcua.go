package codec

import (
	"fmt"

	"github.com/gopcua/opcua/ua"
)

// OPCUAValue frames a message as a sequence of OPC-UA binary-encoded
// DataValues, one per field: Command (UInt16), Sequence (UInt16),
// Value (Double) and Reason (String). Each carries the message timestamp as
// its source timestamp.
type OPCUAValue struct{}

// Protocol returns OPCUA.
func (OPCUAValue) Protocol() Protocol { return OPCUA }

// Encode builds the frame.
func (OPCUAValue) Encode(msg Message) ([]byte, error) {
	fields := []any{uint16(msg.Command), msg.Sequence, msg.Value, msg.Reason}

	var frame []byte
	for i, f := range fields {
		v, err := ua.NewVariant(f)
		if err != nil {
			return nil, fmt.Errorf("opcua field %d: %w", i, err)
		}
		dv := &ua.DataValue{
			EncodingMask: ua.DataValueValue,
			Value:        v,
		}
		if !msg.Timestamp.IsZero() {
			dv.EncodingMask |= ua.DataValueSourceTimestamp
			dv.SourceTimestamp = msg.Timestamp
		}
		b, err := dv.Encode()
		if err != nil {
			return nil, fmt.Errorf("opcua field %d: %w", i, err)
		}
		frame = append(frame, b...)
	}
	return frame, nil
}

// Decode parses a frame produced by Encode.
func (OPCUAValue) Decode(frame []byte) (Message, error) {
	var (
		msg Message
		pos int
	)
	for i := range 4 {
		if pos >= len(frame) {
			return Message{}, fmt.Errorf("%w: opcua field %d missing", ErrFrameTooShort, i)
		}
		dv := new(ua.DataValue)
		n, err := dv.Decode(frame[pos:])
		if err != nil {
			return Message{}, fmt.Errorf("%w: opcua field %d: %v", ErrInvalidFrame, i, err)
		}
		pos += n
		if dv.Value == nil {
			return Message{}, fmt.Errorf("%w: opcua field %d has no value", ErrInvalidFrame, i)
		}
		if i == 0 && dv.EncodingMask&ua.DataValueSourceTimestamp != 0 {
			msg.Timestamp = dv.SourceTimestamp
		}

		var ok bool
		switch i {
		case 0:
			var c uint16
			c, ok = dv.Value.Value().(uint16)
			msg.Command = Command(c)
		case 1:
			msg.Sequence, ok = dv.Value.Value().(uint16)
		case 2:
			msg.Value, ok = dv.Value.Value().(float64)
		case 3:
			msg.Reason, ok = dv.Value.Value().(string)
		}
		if !ok {
			return Message{}, fmt.Errorf("%w: opcua field %d has type %T", ErrInvalidFrame, i, dv.Value.Value())
		}
	}
	return msg, nil
}
