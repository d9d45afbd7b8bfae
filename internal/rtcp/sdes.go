package rtcp

import "encoding/binary"

// SDES item types registered with IANA (RFC 3550 §6.5).
const (
	SDESEnd      uint8 = iota
	SDESCNAME          // canonical name, RFC 3550 §6.5.1
	SDESName           // user name, RFC 3550 §6.5.2
	SDESEmail          // user's electronic mail address, RFC 3550 §6.5.3
	SDESPhone          // user's phone number, RFC 3550 §6.5.4
	SDESLocation       // geographic user location, RFC 3550 §6.5.5
	SDESTool           // name of application or tool, RFC 3550 §6.5.6
	SDESNote           // notice about the source, RFC 3550 §6.5.7
)

// SourceDescription (SDES) describes the sources contributing to an
// RTP stream (RFC 3550 §6.5).
type SourceDescription struct {
	Chunks []SourceDescriptionChunk
}

func (s SourceDescription) Marshal() ([]byte, error) {
	var body []byte
	for _, c := range s.Chunks {
		cb, err := c.marshal()
		if err != nil {
			return nil, err
		}
		body = append(body, cb...)
	}
	h := Header{Count: uint8(len(s.Chunks)), Type: TypeSourceDescription, Length: uint16(len(body)/4 + 1 - 1)}
	hb, err := h.Marshal()
	if err != nil {
		return nil, err
	}
	return append(hb, body...), nil
}

func (s *SourceDescription) Unmarshal(raw []byte) error {
	var h Header
	if err := h.Unmarshal(raw); err != nil {
		return err
	}
	if h.Type != TypeSourceDescription {
		return errWrongType
	}
	body := raw[headerLength:]
	for i := 0; i < len(body); {
		var c SourceDescriptionChunk
		if err := c.unmarshal(body[i:]); err != nil {
			return err
		}
		s.Chunks = append(s.Chunks, c)
		i += c.wireLen()
	}
	return nil
}

// SourceDescriptionChunk carries the SDES items describing one SSRC.
type SourceDescriptionChunk struct {
	Source uint32
	Items  []SourceDescriptionItem
}

func (c SourceDescriptionChunk) marshal() ([]byte, error) {
	b := make([]byte, ssrcLength)
	binary.BigEndian.PutUint32(b, c.Source)
	for _, it := range c.Items {
		ib, err := it.marshal()
		if err != nil {
			return nil, err
		}
		b = append(b, ib...)
	}
	b = append(b, SDESEnd)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b, nil
}

func (c *SourceDescriptionChunk) unmarshal(raw []byte) error {
	if len(raw) < ssrcLength+1 {
		return errPacketTooShort
	}
	c.Source = binary.BigEndian.Uint32(raw)
	for i := ssrcLength; i < len(raw); {
		if raw[i] == SDESEnd {
			return nil
		}
		var it SourceDescriptionItem
		if err := it.unmarshal(raw[i:]); err != nil {
			return err
		}
		c.Items = append(c.Items, it)
		i += it.wireLen()
	}
	return errPacketTooShort
}

func (c SourceDescriptionChunk) wireLen() int {
	n := ssrcLength + 1
	for _, it := range c.Items {
		n += it.wireLen()
	}
	if n%4 != 0 {
		n += 4 - n%4
	}
	return n
}

// SourceDescriptionItem is a single (type, text) pair within a chunk.
type SourceDescriptionItem struct {
	Type uint8
	Text string
}

func (it SourceDescriptionItem) wireLen() int {
	return 2 + len(it.Text)
}

func (it SourceDescriptionItem) marshal() ([]byte, error) {
	if it.Type == SDESEnd {
		return nil, errWrongType
	}
	if len(it.Text) > 255 {
		return nil, errTooManyReports
	}
	b := make([]byte, 2, 2+len(it.Text))
	b[0] = it.Type
	b[1] = uint8(len(it.Text))
	return append(b, it.Text...), nil
}

func (it *SourceDescriptionItem) unmarshal(raw []byte) error {
	if len(raw) < 2 {
		return errPacketTooShort
	}
	it.Type = raw[0]
	n := int(raw[1])
	if 2+n > len(raw) {
		return errPacketTooShort
	}
	it.Text = string(raw[2 : 2+n])
	return nil
}
