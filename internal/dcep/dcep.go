// Package dcep implements the Data Channel Establishment Protocol
// (RFC 8832): the in-band DATA_CHANNEL_OPEN/DATA_CHANNEL_ACK messages
// a DataChannel exchanges on its own SCTP stream before user data
// flows, carried with PPID 50. Grounded on pion/webrtc's pkg/dcep
// (message type byte, Parse dispatch) and pkg/datachannel (ChannelOpen
// wire layout) — pion/webrtc's
// ChannelOpen.Marshal is an explicit placeholder returning
// "Unimplemented"; this implementation marshals the full message.
package dcep

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MessageType is the first byte of every DCEP message.
type MessageType byte

// DCEP message types (RFC 8832 §5).
const (
	TypeAck  MessageType = 0x02
	TypeOpen MessageType = 0x03
)

func (t MessageType) String() string {
	switch t {
	case TypeAck:
		return "DATA_CHANNEL_ACK"
	case TypeOpen:
		return "DATA_CHANNEL_OPEN"
	default:
		return fmt.Sprintf("unknown DCEP type %#x", byte(t))
	}
}

// ChannelType is the Channel Type field of DATA_CHANNEL_OPEN (RFC
// 8832 §5.1), encoding ordered/unordered and reliability policy.
type ChannelType byte

// Channel types (RFC 8832 §5.1 / RFC 8831 §6).
const (
	ChannelReliable                ChannelType = 0x00
	ChannelReliableUnordered       ChannelType = 0x80
	ChannelPartialReliableRexmit   ChannelType = 0x01
	ChannelPartialReliableRexmitUnordered ChannelType = 0x81
	ChannelPartialReliableTimed    ChannelType = 0x02
	ChannelPartialReliableTimedUnordered   ChannelType = 0x82
)

// Unordered reports whether the channel type's high bit marks it
// unordered (RFC 8831 §6.1).
func (c ChannelType) Unordered() bool { return c&0x80 != 0 }

// Message is a parsed DCEP message.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// Parse dispatches raw to a ChannelOpen or ChannelAck by its leading
// type byte.
func Parse(raw []byte) (Message, error) {
	if len(raw) == 0 {
		return nil, errors.New("dcep: empty message")
	}
	var msg Message
	switch MessageType(raw[0]) {
	case TypeOpen:
		msg = &ChannelOpen{}
	case TypeAck:
		msg = &ChannelAck{}
	default:
		return nil, fmt.Errorf("dcep: %s", MessageType(raw[0]))
	}
	if err := msg.Unmarshal(raw); err != nil {
		return nil, err
	}
	return msg, nil
}

const channelOpenHeaderLength = 12

// ChannelOpen is the DATA_CHANNEL_OPEN message (RFC 8832 §5.1).
type ChannelOpen struct {
	ChannelType          ChannelType
	Priority             uint16
	ReliabilityParameter uint32
	Label                []byte
	Protocol             []byte
}

// Marshal encodes the message per the RFC 8832 §5.1 layout.
func (c *ChannelOpen) Marshal() ([]byte, error) {
	raw := make([]byte, channelOpenHeaderLength+len(c.Label)+len(c.Protocol))
	raw[0] = byte(TypeOpen)
	raw[1] = byte(c.ChannelType)
	binary.BigEndian.PutUint16(raw[2:], c.Priority)
	binary.BigEndian.PutUint32(raw[4:], c.ReliabilityParameter)
	binary.BigEndian.PutUint16(raw[8:], uint16(len(c.Label)))
	binary.BigEndian.PutUint16(raw[10:], uint16(len(c.Protocol)))
	copy(raw[channelOpenHeaderLength:], c.Label)
	copy(raw[channelOpenHeaderLength+len(c.Label):], c.Protocol)
	return raw, nil
}

// Unmarshal decodes a DATA_CHANNEL_OPEN message.
func (c *ChannelOpen) Unmarshal(raw []byte) error {
	if len(raw) < channelOpenHeaderLength {
		return fmt.Errorf("dcep: ChannelOpen too short (%d bytes)", len(raw))
	}
	if MessageType(raw[0]) != TypeOpen {
		return fmt.Errorf("dcep: expected DATA_CHANNEL_OPEN, got %s", MessageType(raw[0]))
	}
	c.ChannelType = ChannelType(raw[1])
	c.Priority = binary.BigEndian.Uint16(raw[2:])
	c.ReliabilityParameter = binary.BigEndian.Uint32(raw[4:])
	labelLen := binary.BigEndian.Uint16(raw[8:])
	protoLen := binary.BigEndian.Uint16(raw[10:])
	if len(raw) != channelOpenHeaderLength+int(labelLen)+int(protoLen) {
		return errors.New("dcep: label/protocol length mismatch")
	}
	c.Label = append([]byte(nil), raw[channelOpenHeaderLength:channelOpenHeaderLength+int(labelLen)]...)
	c.Protocol = append([]byte(nil), raw[channelOpenHeaderLength+int(labelLen):]...)
	return nil
}

// ChannelAck is the zero-length DATA_CHANNEL_ACK confirmation message
// (RFC 8832 §5.2).
type ChannelAck struct{}

// Marshal encodes the single type byte.
func (ChannelAck) Marshal() ([]byte, error) { return []byte{byte(TypeAck)}, nil }

// Unmarshal validates the single type byte.
func (c *ChannelAck) Unmarshal(raw []byte) error {
	if len(raw) == 0 || MessageType(raw[0]) != TypeAck {
		return errors.New("dcep: not a DATA_CHANNEL_ACK")
	}
	return nil
}
