package rtcp

import "encoding/binary"

// ReceptionReport is one SSRC's reception-quality block, carried in
// both SenderReport and ReceiverReport (RFC 3550 §6.4.1/6.4.2).
type ReceptionReport struct {
	SSRC               uint32
	FractionLost       uint8
	TotalLost          uint32 // 24-bit on the wire
	LastSequenceNumber uint32 // cycles<<16 | highest sequence number
	Jitter             uint32
	LastSenderReport   uint32
	Delay              uint32 // DLSR, in 1/65536 seconds
}

const receptionReportLength = 24

// Marshal encodes r.
func (r ReceptionReport) Marshal() ([]byte, error) {
	b := make([]byte, receptionReportLength)
	binary.BigEndian.PutUint32(b[0:], r.SSRC)
	b[4] = r.FractionLost
	b[5] = byte(r.TotalLost >> 16)
	b[6] = byte(r.TotalLost >> 8)
	b[7] = byte(r.TotalLost)
	binary.BigEndian.PutUint32(b[8:], r.LastSequenceNumber)
	binary.BigEndian.PutUint32(b[12:], r.Jitter)
	binary.BigEndian.PutUint32(b[16:], r.LastSenderReport)
	binary.BigEndian.PutUint32(b[20:], r.Delay)
	return b, nil
}

// Unmarshal decodes r from raw.
func (r *ReceptionReport) Unmarshal(raw []byte) error {
	if len(raw) < receptionReportLength {
		return errPacketTooShort
	}
	r.SSRC = binary.BigEndian.Uint32(raw[0:])
	r.FractionLost = raw[4]
	r.TotalLost = uint32(raw[5])<<16 | uint32(raw[6])<<8 | uint32(raw[7])
	r.LastSequenceNumber = binary.BigEndian.Uint32(raw[8:])
	r.Jitter = binary.BigEndian.Uint32(raw[12:])
	r.LastSenderReport = binary.BigEndian.Uint32(raw[16:])
	r.Delay = binary.BigEndian.Uint32(raw[20:])
	return nil
}

// SenderReport carries the sender's wallclock/RTP timestamp
// correspondence plus packet/octet counts (RFC 3550 §6.4.1).
type SenderReport struct {
	SSRC        uint32
	NTPTime     uint64
	RTPTime     uint32
	PacketCount uint32
	OctetCount  uint32
	Reports     []ReceptionReport
}

const senderReportLength = 24

func (r SenderReport) Marshal() ([]byte, error) {
	b := make([]byte, senderReportLength)
	binary.BigEndian.PutUint32(b[0:], r.SSRC)
	binary.BigEndian.PutUint64(b[4:], r.NTPTime)
	binary.BigEndian.PutUint32(b[12:], r.RTPTime)
	binary.BigEndian.PutUint32(b[16:], r.PacketCount)
	binary.BigEndian.PutUint32(b[20:], r.OctetCount)
	for _, rp := range r.Reports {
		rb, err := rp.Marshal()
		if err != nil {
			return nil, err
		}
		b = append(b, rb...)
	}
	h := Header{Count: uint8(len(r.Reports)), Type: TypeSenderReport, Length: uint16(len(b)/4 + 1 - 1)}
	hb, err := h.Marshal()
	if err != nil {
		return nil, err
	}
	return append(hb, b...), nil
}

func (r *SenderReport) Unmarshal(raw []byte) error {
	var h Header
	if err := h.Unmarshal(raw); err != nil {
		return err
	}
	if h.Type != TypeSenderReport {
		return errWrongType
	}
	body := raw[headerLength:]
	if len(body) < senderReportLength {
		return errPacketTooShort
	}
	r.SSRC = binary.BigEndian.Uint32(body[0:])
	r.NTPTime = binary.BigEndian.Uint64(body[4:])
	r.RTPTime = binary.BigEndian.Uint32(body[12:])
	r.PacketCount = binary.BigEndian.Uint32(body[16:])
	r.OctetCount = binary.BigEndian.Uint32(body[20:])
	for i := senderReportLength; i+receptionReportLength <= len(body); i += receptionReportLength {
		var rr ReceptionReport
		if err := rr.Unmarshal(body[i:]); err != nil {
			return err
		}
		r.Reports = append(r.Reports, rr)
	}
	return nil
}

// ReceiverReport is a SenderReport without the sender-specific fields
// (RFC 3550 §6.4.2), sent by an endpoint that isn't itself sending.
type ReceiverReport struct {
	SSRC    uint32
	Reports []ReceptionReport
}

func (r ReceiverReport) Marshal() ([]byte, error) {
	b := make([]byte, ssrcLength)
	binary.BigEndian.PutUint32(b, r.SSRC)
	for _, rp := range r.Reports {
		rb, err := rp.Marshal()
		if err != nil {
			return nil, err
		}
		b = append(b, rb...)
	}
	h := Header{Count: uint8(len(r.Reports)), Type: TypeReceiverReport, Length: uint16(len(b)/4 + 1 - 1)}
	hb, err := h.Marshal()
	if err != nil {
		return nil, err
	}
	return append(hb, b...), nil
}

func (r *ReceiverReport) Unmarshal(raw []byte) error {
	var h Header
	if err := h.Unmarshal(raw); err != nil {
		return err
	}
	if h.Type != TypeReceiverReport {
		return errWrongType
	}
	body := raw[headerLength:]
	if len(body) < ssrcLength {
		return errPacketTooShort
	}
	r.SSRC = binary.BigEndian.Uint32(body)
	for i := ssrcLength; i+receptionReportLength <= len(body); i += receptionReportLength {
		var rr ReceptionReport
		if err := rr.Unmarshal(body[i:]); err != nil {
			return err
		}
		r.Reports = append(r.Reports, rr)
	}
	return nil
}

// Goodbye announces that one or more SSRC/CSRC sources have left the
// session (RFC 3550 §6.6).
type Goodbye struct {
	Sources []uint32
	Reason  string
}

func (g Goodbye) Marshal() ([]byte, error) {
	if len(g.Sources) > countMax {
		return nil, errTooManyReports
	}
	b := make([]byte, len(g.Sources)*ssrcLength)
	for i, s := range g.Sources {
		binary.BigEndian.PutUint32(b[i*ssrcLength:], s)
	}
	if g.Reason != "" {
		reason := []byte(g.Reason)
		b = append(b, uint8(len(reason)))
		b = append(b, reason...)
		for len(b)%4 != 0 {
			b = append(b, 0)
		}
	}
	h := Header{Count: uint8(len(g.Sources)), Type: TypeGoodbye, Length: uint16(len(b)/4 + 1 - 1)}
	hb, err := h.Marshal()
	if err != nil {
		return nil, err
	}
	return append(hb, b...), nil
}

func (g *Goodbye) Unmarshal(raw []byte) error {
	var h Header
	if err := h.Unmarshal(raw); err != nil {
		return err
	}
	if h.Type != TypeGoodbye {
		return errWrongType
	}
	body := raw[headerLength:]
	need := int(h.Count) * ssrcLength
	if len(body) < need {
		return errPacketTooShort
	}
	g.Sources = make([]uint32, h.Count)
	for i := range g.Sources {
		g.Sources[i] = binary.BigEndian.Uint32(body[i*ssrcLength:])
	}
	if len(body) > need {
		reasonLen := int(body[need])
		if need+1+reasonLen <= len(body) {
			g.Reason = string(body[need+1 : need+1+reasonLen])
		}
	}
	return nil
}
