package rtcp

// Packet is any RTCP packet this stack can marshal or unmarshal.
type Packet interface {
	Marshal() ([]byte, error)
}

// Unmarshal parses one RTCP packet from the front of raw and returns
// it alongside the remainder of raw (the rest of a compound packet, if
// any).
func Unmarshal(raw []byte) (Packet, []byte, error) {
	var h Header
	if err := h.Unmarshal(raw); err != nil {
		return nil, nil, err
	}
	packetLen := (int(h.Length) + 1) * 4
	if packetLen > len(raw) {
		return nil, nil, errPacketTooShort
	}
	this, rest := raw[:packetLen], raw[packetLen:]

	var p Packet
	switch h.Type {
	case TypeSenderReport:
		p = new(SenderReport)
	case TypeReceiverReport:
		p = new(ReceiverReport)
	case TypeSourceDescription:
		p = new(SourceDescription)
	case TypeGoodbye:
		p = new(Goodbye)
	case TypeTransportSpecificFeedback:
		switch h.Count {
		case FormatTLN:
			p = new(TransportLayerNack)
		default:
			return nil, rest, nil
		}
	case TypePayloadSpecificFeedback:
		switch h.Count {
		case FormatPLI:
			p = new(PictureLossIndication)
		case FormatSLI:
			p = new(SliceLossIndication)
		case FormatFIR:
			p = new(FullIntraRequest)
		default:
			return nil, rest, nil
		}
	default:
		return nil, rest, nil
	}

	u, ok := p.(interface{ Unmarshal([]byte) error })
	if !ok {
		return nil, rest, errWrongType
	}
	if err := u.Unmarshal(this); err != nil {
		return nil, nil, err
	}
	return p, rest, nil
}

// UnmarshalCompound splits a compound RTCP packet (RFC 3550 §6.1
// requires at least a sender/receiver report followed by an SDES) into
// its constituent packets, skipping any of unrecognized type.
func UnmarshalCompound(raw []byte) ([]Packet, error) {
	var out []Packet
	for len(raw) > 0 {
		p, rest, err := Unmarshal(raw)
		if err != nil {
			return out, err
		}
		if p != nil {
			out = append(out, p)
		}
		raw = rest
	}
	return out, nil
}

// MarshalCompound concatenates packets into a single compound packet.
func MarshalCompound(packets []Packet) ([]byte, error) {
	var out []byte
	for _, p := range packets {
		b, err := p.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}
