package sctp

import "encoding/binary"

// PayloadProtocolIdentifier identifies the application-layer framing
// carried in a DATA chunk's user data (RFC 8831 §8).
type PayloadProtocolIdentifier uint32

// PPIDs recognized by the WebRTC DataChannel layer.
const (
	PayloadTypeWebRTCDCEP        PayloadProtocolIdentifier = 50
	PayloadTypeWebRTCString      PayloadProtocolIdentifier = 51
	PayloadTypeWebRTCBinary      PayloadProtocolIdentifier = 53
	PayloadTypeWebRTCStringEmpty PayloadProtocolIdentifier = 56
	PayloadTypeWebRTCBinaryEmpty PayloadProtocolIdentifier = 57
)

func (p PayloadProtocolIdentifier) String() string {
	switch p {
	case PayloadTypeWebRTCDCEP:
		return "WebRTC DCEP"
	case PayloadTypeWebRTCString:
		return "WebRTC String"
	case PayloadTypeWebRTCBinary:
		return "WebRTC Binary"
	case PayloadTypeWebRTCStringEmpty:
		return "WebRTC String (Empty)"
	case PayloadTypeWebRTCBinaryEmpty:
		return "WebRTC Binary (Empty)"
	default:
		return "Unknown PPID"
	}
}

const (
	flagEnding    = 1 << 0
	flagBeginning = 1 << 1
	flagUnordered = 1 << 2
	flagImmediate = 1 << 3
)

// DataChunk is the DATA chunk carrying one fragment of a user message
// (RFC 4960 §3.3.1).
type DataChunk struct {
	TSN                  uint32
	StreamIdentifier     uint16
	StreamSequenceNumber uint16
	PayloadType          PayloadProtocolIdentifier
	UserData             []byte
	Beginning            bool
	Ending               bool
	Unordered            bool
	ImmediateSack        bool
}

func (c DataChunk) Marshal() ([]byte, error) {
	body := make([]byte, 12+len(c.UserData))
	binary.BigEndian.PutUint32(body[0:], c.TSN)
	binary.BigEndian.PutUint16(body[4:], c.StreamIdentifier)
	binary.BigEndian.PutUint16(body[6:], c.StreamSequenceNumber)
	binary.BigEndian.PutUint32(body[8:], uint32(c.PayloadType))
	copy(body[12:], c.UserData)

	var flags byte
	if c.Ending {
		flags |= flagEnding
	}
	if c.Beginning {
		flags |= flagBeginning
	}
	if c.Unordered {
		flags |= flagUnordered
	}
	if c.ImmediateSack {
		flags |= flagImmediate
	}
	return marshalChunk(ctData, flags, body), nil
}

// UnmarshalData decodes a DATA chunk, including its flag byte.
func UnmarshalData(raw []byte) (DataChunk, error) {
	var c DataChunk
	if len(raw) < 16 || ChunkType(raw[0]) != ctData {
		return c, errChunkTooShort
	}
	flags := raw[1]
	length := int(binary.BigEndian.Uint16(raw[2:]))
	if length < 16 || length > len(raw) {
		return c, errChunkTooShort
	}
	body := raw[4:length]
	c.TSN = binary.BigEndian.Uint32(body[0:])
	c.StreamIdentifier = binary.BigEndian.Uint16(body[4:])
	c.StreamSequenceNumber = binary.BigEndian.Uint16(body[6:])
	c.PayloadType = PayloadProtocolIdentifier(binary.BigEndian.Uint32(body[8:]))
	c.UserData = append([]byte(nil), body[12:]...)
	c.Ending = flags&flagEnding != 0
	c.Beginning = flags&flagBeginning != 0
	c.Unordered = flags&flagUnordered != 0
	c.ImmediateSack = flags&flagImmediate != 0
	return c, nil
}

// GapAck is one gap-ack block of a SACK chunk (RFC 4960 §3.3.4),
// expressed as an offset pair relative to CumulativeTSNAck.
type GapAck struct {
	Start uint16
	End   uint16
}

// Sack is the Selective ACK chunk driving retransmission and
// congestion-window growth (RFC 4960 §3.3.4).
type Sack struct {
	CumulativeTSNAck uint32
	AdvertisedRwnd   uint32
	GapAcks          []GapAck
	DuplicateTSNs    []uint32
}

func (c Sack) Marshal() ([]byte, error) {
	body := make([]byte, 12)
	binary.BigEndian.PutUint32(body[0:], c.CumulativeTSNAck)
	binary.BigEndian.PutUint32(body[4:], c.AdvertisedRwnd)
	binary.BigEndian.PutUint16(body[8:], uint16(len(c.GapAcks)))
	binary.BigEndian.PutUint16(body[10:], uint16(len(c.DuplicateTSNs)))
	for _, g := range c.GapAcks {
		gb := make([]byte, 4)
		binary.BigEndian.PutUint16(gb[0:], g.Start)
		binary.BigEndian.PutUint16(gb[2:], g.End)
		body = append(body, gb...)
	}
	for _, d := range c.DuplicateTSNs {
		db := make([]byte, 4)
		binary.BigEndian.PutUint32(db, d)
		body = append(body, db...)
	}
	return marshalChunk(ctSack, 0, body), nil
}

func UnmarshalSack(raw []byte) (Sack, error) {
	var c Sack
	body, err := chunkBody(raw, ctSack, 12)
	if err != nil {
		return c, err
	}
	c.CumulativeTSNAck = binary.BigEndian.Uint32(body[0:])
	c.AdvertisedRwnd = binary.BigEndian.Uint32(body[4:])
	numGap := int(binary.BigEndian.Uint16(body[8:]))
	numDup := int(binary.BigEndian.Uint16(body[10:]))
	off := 12
	for i := 0; i < numGap && off+4 <= len(body); i++ {
		c.GapAcks = append(c.GapAcks, GapAck{
			Start: binary.BigEndian.Uint16(body[off:]),
			End:   binary.BigEndian.Uint16(body[off+2:]),
		})
		off += 4
	}
	for i := 0; i < numDup && off+4 <= len(body); i++ {
		c.DuplicateTSNs = append(c.DuplicateTSNs, binary.BigEndian.Uint32(body[off:]))
		off += 4
	}
	return c, nil
}

// ForwardTSN implements RFC 3758 partial reliability: it advances the
// cumulative TSN point past abandoned messages so a stalled
// retransmission queue does not block delivery of later messages.
type ForwardTSN struct {
	NewCumulativeTSN uint32
	Streams          []ForwardTSNStream
}

// ForwardTSNStream names the per-stream sequence number up to (and
// including) which messages are abandoned.
type ForwardTSNStream struct {
	Identifier uint16
	Sequence   uint16
}

func (c ForwardTSN) Marshal() ([]byte, error) {
	body := make([]byte, 4+4*len(c.Streams))
	binary.BigEndian.PutUint32(body[0:], c.NewCumulativeTSN)
	for i, s := range c.Streams {
		off := 4 + i*4
		binary.BigEndian.PutUint16(body[off:], s.Identifier)
		binary.BigEndian.PutUint16(body[off+2:], s.Sequence)
	}
	return marshalChunk(ctForwardTSN, 0, body), nil
}

func UnmarshalForwardTSN(raw []byte) (ForwardTSN, error) {
	var c ForwardTSN
	body, err := chunkBody(raw, ctForwardTSN, 4)
	if err != nil {
		return c, err
	}
	c.NewCumulativeTSN = binary.BigEndian.Uint32(body[0:])
	for off := 4; off+4 <= len(body); off += 4 {
		c.Streams = append(c.Streams, ForwardTSNStream{
			Identifier: binary.BigEndian.Uint16(body[off:]),
			Sequence:   binary.BigEndian.Uint16(body[off+2:]),
		})
	}
	return c, nil
}

// ReconfigOutgoingReset is an RE-CONFIG chunk (RFC 6525 §4.1) carrying
// a single Outgoing SSN Reset Request parameter, used by the close
// cascade to let a DataChannel finish "closing" before
// the association tears down.
type ReconfigOutgoingReset struct {
	ReconfigRequestSequenceNumber uint32
	ReconfigResponseSequenceNumber uint32
	SenderLastAssignedTSN         uint32
	StreamIdentifiers             []uint16
}

const paramOutgoingSSNReset = 13

func (c ReconfigOutgoingReset) Marshal() ([]byte, error) {
	paramBody := make([]byte, 12+2*len(c.StreamIdentifiers))
	binary.BigEndian.PutUint32(paramBody[0:], c.ReconfigRequestSequenceNumber)
	binary.BigEndian.PutUint32(paramBody[4:], c.ReconfigResponseSequenceNumber)
	binary.BigEndian.PutUint32(paramBody[8:], c.SenderLastAssignedTSN)
	for i, id := range c.StreamIdentifiers {
		binary.BigEndian.PutUint16(paramBody[12+2*i:], id)
	}
	param := make([]byte, 4+len(paramBody))
	binary.BigEndian.PutUint16(param[0:], paramOutgoingSSNReset)
	binary.BigEndian.PutUint16(param[2:], uint16(len(param)))
	copy(param[4:], paramBody)
	for len(param)%4 != 0 {
		param = append(param, 0)
	}
	return marshalChunk(ctReconfig, 0, param), nil
}

func UnmarshalReconfigOutgoingReset(raw []byte) (ReconfigOutgoingReset, error) {
	var c ReconfigOutgoingReset
	body, err := chunkBody(raw, ctReconfig, 4)
	if err != nil {
		return c, err
	}
	if len(body) < 4 || binary.BigEndian.Uint16(body[0:]) != paramOutgoingSSNReset {
		return c, errUnknownChunk
	}
	paramLen := int(binary.BigEndian.Uint16(body[2:]))
	if paramLen < 4+12 || paramLen > len(body) {
		return c, errChunkTooShort
	}
	pb := body[4:paramLen]
	c.ReconfigRequestSequenceNumber = binary.BigEndian.Uint32(pb[0:])
	c.ReconfigResponseSequenceNumber = binary.BigEndian.Uint32(pb[4:])
	c.SenderLastAssignedTSN = binary.BigEndian.Uint32(pb[8:])
	for off := 12; off+2 <= len(pb); off += 2 {
		c.StreamIdentifiers = append(c.StreamIdentifiers, binary.BigEndian.Uint16(pb[off:]))
	}
	return c, nil
}
