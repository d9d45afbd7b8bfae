package sctp

import "encoding/binary"

// Init is the INIT chunk sent to begin the 4-way association setup
// handshake (RFC 4960 §3.3.2).
type Init struct {
	InitiateTag            uint32
	AdvertisedReceiverWindow uint32
	OutboundStreams        uint16
	InboundStreams         uint16
	InitialTSN             uint32
}

func (c Init) marshalCommon(typ ChunkType, flags byte) ([]byte, error) {
	body := make([]byte, 16)
	binary.BigEndian.PutUint32(body[0:], c.InitiateTag)
	binary.BigEndian.PutUint32(body[4:], c.AdvertisedReceiverWindow)
	binary.BigEndian.PutUint16(body[8:], c.OutboundStreams)
	binary.BigEndian.PutUint16(body[10:], c.InboundStreams)
	binary.BigEndian.PutUint32(body[12:], c.InitialTSN)
	return marshalChunk(typ, flags, body), nil
}

// Marshal encodes an INIT chunk.
func (c Init) Marshal() ([]byte, error) { return c.marshalCommon(ctInit, 0) }

// UnmarshalInit decodes the body (post chunk-header) of an INIT chunk.
func UnmarshalInit(raw []byte) (Init, error) {
	var c Init
	body, err := chunkBody(raw, ctInit, 16)
	if err != nil {
		return c, err
	}
	c.InitiateTag = binary.BigEndian.Uint32(body[0:])
	c.AdvertisedReceiverWindow = binary.BigEndian.Uint32(body[4:])
	c.OutboundStreams = binary.BigEndian.Uint16(body[8:])
	c.InboundStreams = binary.BigEndian.Uint16(body[10:])
	c.InitialTSN = binary.BigEndian.Uint32(body[12:])
	return c, nil
}

// InitAck is the INIT-ACK response, carrying a state cookie the peer
// must echo back unmodified (RFC 4960 §3.3.3). The cookie is opaque to
// the wire format here; callers supply/consume it via Cookie.
type InitAck struct {
	Init
	Cookie []byte
}

func (c InitAck) Marshal() ([]byte, error) {
	body := make([]byte, 16)
	binary.BigEndian.PutUint32(body[0:], c.InitiateTag)
	binary.BigEndian.PutUint32(body[4:], c.AdvertisedReceiverWindow)
	binary.BigEndian.PutUint16(body[8:], c.OutboundStreams)
	binary.BigEndian.PutUint16(body[10:], c.InboundStreams)
	binary.BigEndian.PutUint32(body[12:], c.InitialTSN)
	// State cookie parameter: type 7, TLV-encoded (RFC 4960 §3.3.3).
	param := make([]byte, 4+len(c.Cookie))
	binary.BigEndian.PutUint16(param[0:], 7)
	binary.BigEndian.PutUint16(param[2:], uint16(4+len(c.Cookie)))
	copy(param[4:], c.Cookie)
	body = append(body, param...)
	return marshalChunk(ctInitAck, 0, body), nil
}

func UnmarshalInitAck(raw []byte) (InitAck, error) {
	var c InitAck
	body, err := chunkBody(raw, ctInitAck, 20)
	if err != nil {
		return c, err
	}
	c.InitiateTag = binary.BigEndian.Uint32(body[0:])
	c.AdvertisedReceiverWindow = binary.BigEndian.Uint32(body[4:])
	c.OutboundStreams = binary.BigEndian.Uint16(body[8:])
	c.InboundStreams = binary.BigEndian.Uint16(body[10:])
	c.InitialTSN = binary.BigEndian.Uint32(body[12:])
	for i := 16; i+4 <= len(body); {
		paramType := binary.BigEndian.Uint16(body[i:])
		paramLen := int(binary.BigEndian.Uint16(body[i+2:]))
		if paramLen < 4 || i+paramLen > len(body) {
			break
		}
		if paramType == 7 {
			c.Cookie = append([]byte(nil), body[i+4:i+paramLen]...)
		}
		i += paramLen
		for i%4 != 0 {
			i++
		}
	}
	return c, nil
}

// CookieEcho echoes the state cookie back to the INIT-ACK sender,
// completing step 3 of the handshake (RFC 4960 §3.3.5).
type CookieEcho struct {
	Cookie []byte
}

func (c CookieEcho) Marshal() ([]byte, error) {
	return marshalChunk(ctCookieEcho, 0, c.Cookie), nil
}

func UnmarshalCookieEcho(raw []byte) (CookieEcho, error) {
	var c CookieEcho
	body, err := chunkBody(raw, ctCookieEcho, 0)
	if err != nil {
		return c, err
	}
	c.Cookie = append([]byte(nil), body...)
	return c, nil
}

// CookieAck completes the handshake (RFC 4960 §3.3.6).
type CookieAck struct{}

func (CookieAck) Marshal() ([]byte, error) { return marshalChunk(ctCookieAck, 0, nil), nil }

// Abort terminates the association, optionally citing a reason (RFC
// 4960 §3.3.7).
type Abort struct {
	Reason string
}

func (c Abort) Marshal() ([]byte, error) {
	return marshalChunk(ctAbort, 0, []byte(c.Reason)), nil
}

func UnmarshalAbort(raw []byte) (Abort, error) {
	var c Abort
	body, err := chunkBody(raw, ctAbort, 0)
	if err != nil {
		return c, err
	}
	c.Reason = string(body)
	return c, nil
}

// Shutdown begins graceful teardown (RFC 4960 §3.3.8).
type Shutdown struct {
	CumulativeTSNAck uint32
}

func (c Shutdown) Marshal() ([]byte, error) {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, c.CumulativeTSNAck)
	return marshalChunk(ctShutdown, 0, body), nil
}

func UnmarshalShutdown(raw []byte) (Shutdown, error) {
	var c Shutdown
	body, err := chunkBody(raw, ctShutdown, 4)
	if err != nil {
		return c, err
	}
	c.CumulativeTSNAck = binary.BigEndian.Uint32(body)
	return c, nil
}

// ShutdownAck and ShutdownComplete close out teardown (RFC 4960
// §3.3.9/§3.3.10).
type ShutdownAck struct{}

func (ShutdownAck) Marshal() ([]byte, error) { return marshalChunk(ctShutdownAck, 0, nil), nil }

type ShutdownComplete struct{}

func (ShutdownComplete) Marshal() ([]byte, error) {
	return marshalChunk(ctShutdownComplete, 0, nil), nil
}

func marshalChunk(typ ChunkType, flags byte, value []byte) []byte {
	raw := make([]byte, 4+len(value))
	raw[0] = uint8(typ)
	raw[1] = flags
	binary.BigEndian.PutUint16(raw[2:], uint16(4+len(value)))
	copy(raw[4:], value)
	return raw
}

func chunkBody(raw []byte, want ChunkType, minLen int) ([]byte, error) {
	if len(raw) < 4 || ChunkType(raw[0]) != want {
		return nil, errUnknownChunk
	}
	length := int(binary.BigEndian.Uint16(raw[2:]))
	if length < 4 || length > len(raw) {
		return nil, errChunkTooShort
	}
	body := raw[4:length]
	if len(body) < minLen {
		return nil, errChunkTooShort
	}
	return body, nil
}
