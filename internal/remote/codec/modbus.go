package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Modbus/TCP framing constants.
const (
	mbapHeaderSize = 7

	// FuncWriteMultipleRegisters is the Modbus function code 0x10.
	FuncWriteMultipleRegisters byte = 0x10

	// ModbusUnitID is the unit identifier placed in every frame.
	ModbusUnitID byte = 0x01

	// ModbusBaseRegister is the first holding register written.
	ModbusBaseRegister uint16 = 0x0000

	modbusRegisters = 5
)

// Modbus frames a message as a Modbus/TCP write-multiple-registers request.
//
// Frame layout:
//
//	Byte 0-1:   Transaction ID (Sequence)
//	Byte 2-3:   Protocol ID (0x0000)
//	Byte 4-5:   Length of the remaining bytes
//	Byte 6:     Unit ID
//	Byte 7:     Function code (0x10)
//	Byte 8-9:   Starting register
//	Byte 10-11: Register count (5)
//	Byte 12:    Byte count (10)
//	Byte 13-14: Command
//	Byte 15-22: Value as IEEE-754 float64 across four registers
//
// The reason text does not fit a register map and is not carried.
type Modbus struct{}

// Protocol returns ModbusTCP.
func (Modbus) Protocol() Protocol { return ModbusTCP }

// Encode builds the request frame.
func (Modbus) Encode(msg Message) ([]byte, error) {
	pduLen := 1 + 2 + 2 + 1 + modbusRegisters*2
	frame := make([]byte, mbapHeaderSize+pduLen)

	binary.BigEndian.PutUint16(frame[0:2], msg.Sequence)
	binary.BigEndian.PutUint16(frame[2:4], 0)
	binary.BigEndian.PutUint16(frame[4:6], uint16(1+pduLen)) //nolint:gosec // fixed small size
	frame[6] = ModbusUnitID

	pdu := frame[mbapHeaderSize:]
	pdu[0] = FuncWriteMultipleRegisters
	binary.BigEndian.PutUint16(pdu[1:3], ModbusBaseRegister)
	binary.BigEndian.PutUint16(pdu[3:5], modbusRegisters)
	pdu[5] = modbusRegisters * 2
	binary.BigEndian.PutUint16(pdu[6:8], uint16(msg.Command))
	binary.BigEndian.PutUint64(pdu[8:16], math.Float64bits(msg.Value))
	return frame, nil
}

// Decode parses a frame produced by Encode.
func (Modbus) Decode(frame []byte) (Message, error) {
	const want = mbapHeaderSize + 6 + modbusRegisters*2
	if len(frame) < want {
		return Message{}, fmt.Errorf("%w: modbus %d bytes, need %d", ErrFrameTooShort, len(frame), want)
	}
	if pid := binary.BigEndian.Uint16(frame[2:4]); pid != 0 {
		return Message{}, fmt.Errorf("%w: modbus protocol id %d", ErrInvalidFrame, pid)
	}
	pdu := frame[mbapHeaderSize:]
	if pdu[0] != FuncWriteMultipleRegisters {
		return Message{}, fmt.Errorf("%w: modbus function 0x%02X", ErrInvalidFrame, pdu[0])
	}
	if n := binary.BigEndian.Uint16(pdu[3:5]); n != modbusRegisters || pdu[5] != modbusRegisters*2 {
		return Message{}, fmt.Errorf("%w: modbus register count %d", ErrInvalidFrame, n)
	}
	return Message{
		Sequence: binary.BigEndian.Uint16(frame[0:2]),
		Command:  Command(binary.BigEndian.Uint16(pdu[6:8])),
		Value:    math.Float64frombits(binary.BigEndian.Uint64(pdu[8:16])),
	}, nil
}
