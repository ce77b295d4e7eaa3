// Package codec frames control messages for the industrial protocols remote
// sites speak.
//
// The framings are illustrative. They follow the shape of each protocol's
// header closely enough to be recognisable on a wire capture, but they are
// not conformant implementations and carry only what a remote collaborator
// needs to act on a control message.
//
//	           ┌────────────┐
//	Message ──►│   Codec    │──► []byte ──► transport (MQTT)
//	           └────────────┘
//	             ▲   ▲   ▲   ▲
//	  MODBUS_TCP ┘   │   │   └ OPC_UA (gopcua ua.DataValue)
//	      ETHERNET_IP┘   └ PROFINET
package codec

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Protocol names a remote site's wire protocol.
type Protocol string

// Supported protocols.
const (
	ModbusTCP  Protocol = "MODBUS_TCP"
	EtherNetIP Protocol = "ETHERNET_IP"
	Profinet   Protocol = "PROFINET"
	OPCUA      Protocol = "OPC_UA"
)

// ParseProtocol accepts a protocol name in any case, with '-' or '_'.
func ParseProtocol(s string) (Protocol, bool) {
	p := Protocol(strings.ReplaceAll(strings.ToUpper(s), "-", "_"))
	switch p {
	case ModbusTCP, EtherNetIP, Profinet, OPCUA:
		return p, true
	case "MODBUS":
		return ModbusTCP, true
	case "ENIP", "ETHERNETIP":
		return EtherNetIP, true
	case "OPCUA":
		return OPCUA, true
	}
	return "", false
}

// Command is the instruction a message carries.
type Command uint16

// Commands understood by remote sites.
const (
	CommandHeartbeat     Command = 0x0001
	CommandSetpoint      Command = 0x0002
	CommandEmergencyStop Command = 0x00FF
)

func (c Command) String() string {
	switch c {
	case CommandHeartbeat:
		return "HEARTBEAT"
	case CommandSetpoint:
		return "SETPOINT"
	case CommandEmergencyStop:
		return "EMERGENCY_STOP"
	}
	return fmt.Sprintf("COMMAND(0x%04X)", uint16(c))
}

// Message is a protocol-neutral control message.
type Message struct {
	Command   Command
	Sequence  uint16
	Value     float64
	Reason    string
	Timestamp time.Time
}

// Codec encodes and decodes messages for one protocol.
type Codec interface {
	Protocol() Protocol
	Encode(msg Message) ([]byte, error)
	Decode(frame []byte) (Message, error)
}

// Errors returned by codecs.
var (
	// ErrFrameTooShort is returned when a frame is shorter than its header.
	ErrFrameTooShort = errors.New("codec: frame too short")

	// ErrInvalidFrame is returned when a header field has an unexpected value.
	ErrInvalidFrame = errors.New("codec: invalid frame")

	// ErrUnknownProtocol is returned by For for unsupported protocols.
	ErrUnknownProtocol = errors.New("codec: unknown protocol")
)

// For returns the codec for p.
func For(p Protocol) (Codec, error) {
	switch p {
	case ModbusTCP:
		return Modbus{}, nil
	case EtherNetIP:
		return ENIP{}, nil
	case Profinet:
		return PNIO{}, nil
	case OPCUA:
		return OPCUAValue{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, p)
}
