package rtcp

import "encoding/binary"

// NackPair is one 32-bit (PID, BLP) pair of a TransportLayerNack
// (RFC 4585 §6.2.1): PID is the first lost sequence number, BLP is a
// bitmask of 16 further sequence numbers following it that are also
// lost.
type NackPair struct {
	PacketID    uint16
	LostBitmask uint16
}

// PacketList expands the pair into the set of lost sequence numbers it
// represents.
func (p NackPair) PacketList() []uint16 {
	out := []uint16{p.PacketID}
	for i := 0; i < 16; i++ {
		if p.LostBitmask&(1<<uint(i)) != 0 {
			out = append(out, p.PacketID+uint16(i)+1)
		}
	}
	return out
}

// NackPairsFromSequenceNumbers groups a sorted-ascending set of lost
// sequence numbers into the minimum number of NackPair entries.
func NackPairsFromSequenceNumbers(seqNumbers []uint16) []NackPair {
	var pairs []NackPair
	for i := 0; i < len(seqNumbers); {
		pid := seqNumbers[i]
		var blp uint16
		i++
		for i < len(seqNumbers) {
			d := seqNumbers[i] - pid - 1
			if d >= 16 {
				break
			}
			blp |= 1 << d
			i++
		}
		pairs = append(pairs, NackPair{PacketID: pid, LostBitmask: blp})
	}
	return pairs
}

// TransportLayerNack is RTCPFB PT=205 FMT=1, requesting retransmission
// of specific RTP sequence numbers (RFC 4585 §6.2.1).
type TransportLayerNack struct {
	SenderSSRC uint32
	MediaSSRC  uint32
	Nacks      []NackPair
}

func (n TransportLayerNack) Marshal() ([]byte, error) {
	body := make([]byte, 8+len(n.Nacks)*4)
	binary.BigEndian.PutUint32(body[0:], n.SenderSSRC)
	binary.BigEndian.PutUint32(body[4:], n.MediaSSRC)
	for i, p := range n.Nacks {
		binary.BigEndian.PutUint16(body[8+i*4:], p.PacketID)
		binary.BigEndian.PutUint16(body[8+i*4+2:], p.LostBitmask)
	}
	h := Header{Count: FormatTLN, Type: TypeTransportSpecificFeedback, Length: uint16(len(body)/4 + 1 - 1)}
	hb, err := h.Marshal()
	if err != nil {
		return nil, err
	}
	return append(hb, body...), nil
}

func (n *TransportLayerNack) Unmarshal(raw []byte) error {
	var h Header
	if err := h.Unmarshal(raw); err != nil {
		return err
	}
	if h.Type != TypeTransportSpecificFeedback || h.Count != FormatTLN {
		return errWrongType
	}
	body := raw[headerLength:]
	if len(body) < 8 {
		return errPacketTooShort
	}
	n.SenderSSRC = binary.BigEndian.Uint32(body[0:])
	n.MediaSSRC = binary.BigEndian.Uint32(body[4:])
	for i := 8; i+4 <= len(body); i += 4 {
		n.Nacks = append(n.Nacks, NackPair{
			PacketID:    binary.BigEndian.Uint16(body[i:]),
			LostBitmask: binary.BigEndian.Uint16(body[i+2:]),
		})
	}
	return nil
}

func marshalPSFB(format uint8, senderSSRC, mediaSSRC uint32, fci []byte) ([]byte, error) {
	body := make([]byte, 8+len(fci))
	binary.BigEndian.PutUint32(body[0:], senderSSRC)
	binary.BigEndian.PutUint32(body[4:], mediaSSRC)
	copy(body[8:], fci)
	h := Header{Count: format, Type: TypePayloadSpecificFeedback, Length: uint16(len(body)/4 + 1 - 1)}
	hb, err := h.Marshal()
	if err != nil {
		return nil, err
	}
	return append(hb, body...), nil
}

func unmarshalPSFB(raw []byte, format uint8) (senderSSRC, mediaSSRC uint32, fci []byte, err error) {
	var h Header
	if err = h.Unmarshal(raw); err != nil {
		return
	}
	if h.Type != TypePayloadSpecificFeedback || h.Count != format {
		err = errWrongType
		return
	}
	body := raw[headerLength:]
	if len(body) < 8 {
		err = errPacketTooShort
		return
	}
	senderSSRC = binary.BigEndian.Uint32(body[0:])
	mediaSSRC = binary.BigEndian.Uint32(body[4:])
	fci = body[8:]
	return
}

// PictureLossIndication is RTCPFB PT=206 FMT=1: the decoder lost a
// picture and cannot recover without a new key frame (RFC 4585 §6.3.1).
type PictureLossIndication struct {
	SenderSSRC uint32
	MediaSSRC  uint32
}

func (p PictureLossIndication) Marshal() ([]byte, error) {
	return marshalPSFB(FormatPLI, p.SenderSSRC, p.MediaSSRC, nil)
}

func (p *PictureLossIndication) Unmarshal(raw []byte) error {
	ss, ms, _, err := unmarshalPSFB(raw, FormatPLI)
	if err != nil {
		return err
	}
	p.SenderSSRC, p.MediaSSRC = ss, ms
	return nil
}

// SliceLossIndication is RTCPFB PT=206 FMT=2 (RFC 4585 §6.3.2).
type SliceLossIndication struct {
	SenderSSRC uint32
	MediaSSRC  uint32
	FirstMB    uint16
	NumberMB   uint16
	PictureID  uint8
}

func (s SliceLossIndication) Marshal() ([]byte, error) {
	fci := make([]byte, 4)
	v := uint32(s.FirstMB)<<19 | uint32(s.NumberMB&0x1fff)<<6 | uint32(s.PictureID&0x3f)
	binary.BigEndian.PutUint32(fci, v)
	return marshalPSFB(FormatSLI, s.SenderSSRC, s.MediaSSRC, fci)
}

func (s *SliceLossIndication) Unmarshal(raw []byte) error {
	ss, ms, fci, err := unmarshalPSFB(raw, FormatSLI)
	if err != nil {
		return err
	}
	if len(fci) < 4 {
		return errPacketTooShort
	}
	v := binary.BigEndian.Uint32(fci)
	s.SenderSSRC, s.MediaSSRC = ss, ms
	s.FirstMB = uint16(v >> 19)
	s.NumberMB = uint16(v>>6) & 0x1fff
	s.PictureID = uint8(v & 0x3f)
	return nil
}

// FullIntraRequest is RTCPFB PT=206 FMT=4, requesting a new key frame
// (RFC 5104 §4.3.1).
type FullIntraRequest struct {
	SenderSSRC uint32
	MediaSSRC  uint32
	SeqNumber  uint8
}

func (f FullIntraRequest) Marshal() ([]byte, error) {
	fci := make([]byte, 4)
	binary.BigEndian.PutUint32(fci, f.MediaSSRC)
	fci[0] = f.SeqNumber
	return marshalPSFB(FormatFIR, f.SenderSSRC, f.MediaSSRC, fci)
}

func (f *FullIntraRequest) Unmarshal(raw []byte) error {
	ss, ms, fci, err := unmarshalPSFB(raw, FormatFIR)
	if err != nil {
		return err
	}
	if len(fci) < 4 {
		return errPacketTooShort
	}
	f.SenderSSRC, f.MediaSSRC = ss, ms
	f.SeqNumber = fci[0]
	return nil
}

// ReceiverEstimatedMaxBitrate is the unofficial REMB packet (PT=206
// FMT=15) advertising the receiver's estimate of available bandwidth.
type ReceiverEstimatedMaxBitrate struct {
	SenderSSRC uint32
	Bitrate    float32
	SSRCs      []uint32
}

func (r ReceiverEstimatedMaxBitrate) Marshal() ([]byte, error) {
	exp, mantissa := remExpMantissa(r.Bitrate)
	fci := make([]byte, 8+len(r.SSRCs)*4)
	copy(fci[0:4], "REMB")
	fci[4] = uint8(len(r.SSRCs))
	fci[4+1] = byte(exp<<2) | byte(mantissa>>16)&0x3
	fci[4+2] = byte(mantissa >> 8)
	fci[4+3] = byte(mantissa)
	for i, s := range r.SSRCs {
		binary.BigEndian.PutUint32(fci[8+i*4:], s)
	}
	return marshalPSFB(FormatREMB, r.SenderSSRC, 0, fci)
}

func (r *ReceiverEstimatedMaxBitrate) Unmarshal(raw []byte) error {
	ss, _, fci, err := unmarshalPSFB(raw, FormatREMB)
	if err != nil {
		return err
	}
	if len(fci) < 8 || string(fci[0:4]) != "REMB" {
		return errWrongType
	}
	r.SenderSSRC = ss
	n := int(fci[4])
	exp := fci[5] >> 2
	mantissa := uint32(fci[5]&0x3)<<16 | uint32(fci[6])<<8 | uint32(fci[7])
	r.Bitrate = float32(mantissa) * pow2(exp)
	for i := 0; i < n && 8+i*4+4 <= len(fci); i++ {
		r.SSRCs = append(r.SSRCs, binary.BigEndian.Uint32(fci[8+i*4:]))
	}
	return nil
}

// remExpMantissa splits a bitrate into REMB's 6-bit exponent / 18-bit
// mantissa floating point encoding.
func remExpMantissa(bitrate float32) (exp uint8, mantissa uint32) {
	const maxMantissa = 0x3ffff
	br := uint64(bitrate)
	for br > maxMantissa {
		br >>= 1
		exp++
	}
	return exp, uint32(br)
}

func pow2(n uint8) float32 {
	var v float32 = 1
	for i := uint8(0); i < n; i++ {
		v *= 2
	}
	return v
}
