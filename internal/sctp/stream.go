package sctp

import (
	"errors"
	"sync"
)

var errStreamClosed = errors.New("sctp: stream closed")

// Stream represents one SCTP stream, the per-DataChannel delivery
// unit. Reassembly relies on the
// Association only ever calling handleData once the chunk's TSN has
// become part of the contiguous cumulative-ack run (association.go's
// handleDataLocked), so fragments and successive messages on one
// stream always arrive here in send order — grounded on pion/webrtc's
// internal/sctp.Stream (readNotifier + reassembly queue) but
// simplified to lean on that ordering guarantee instead of a separate
// SSN-indexed buffer.
type Stream struct {
	association *Association

	lock sync.Mutex

	streamIdentifier   uint16
	defaultPayloadType PayloadProtocolIdentifier
	sequenceNumber     uint16
	unordered          bool

	fragBuf  []byte
	fragPPI  PayloadProtocolIdentifier
	fragging bool

	completed    [][]byte
	completedPPI []PayloadProtocolIdentifier

	readNotifier chan struct{}
	closeCh      chan struct{}
	closed       bool
	resetByPeer  bool
}

// StreamIdentifier returns the SCTP stream identifier.
func (s *Stream) StreamIdentifier() uint16 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.streamIdentifier
}

// SetDefaultPayloadType sets the PPID used by Write (as opposed to
// WriteSCTP, which takes one explicitly).
func (s *Stream) SetDefaultPayloadType(ppi PayloadProtocolIdentifier) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.defaultPayloadType = ppi
}

// SetUnordered toggles whether messages written to this stream skip
// ordering.
func (s *Stream) SetUnordered(unordered bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.unordered = unordered
}

// Read reads one message as binary data, discarding its PPID.
func (s *Stream) Read(p []byte) (int, error) {
	n, _, err := s.ReadSCTP(p)
	return n, err
}

// ReadSCTP reads one complete message and its Payload Protocol
// Identifier, blocking until one is available or the stream closes.
func (s *Stream) ReadSCTP(p []byte) (int, PayloadProtocolIdentifier, error) {
	for {
		s.lock.Lock()
		if len(s.completed) > 0 {
			data := s.completed[0]
			ppi := s.completedPPI[0]
			s.completed = s.completed[1:]
			s.completedPPI = s.completedPPI[1:]
			s.lock.Unlock()
			return copy(p, data), ppi, nil
		}
		closed := s.closed
		s.lock.Unlock()
		if closed {
			return 0, 0, errStreamClosed
		}
		select {
		case <-s.readNotifier:
		case <-s.closeCh:
		}
	}
}

func (s *Stream) handleData(d DataChunk) {
	s.lock.Lock()
	if d.Beginning {
		s.fragBuf = s.fragBuf[:0]
		s.fragPPI = d.PayloadType
		s.fragging = true
	}
	if s.fragging {
		s.fragBuf = append(s.fragBuf, d.UserData...)
	}
	if d.Ending && s.fragging {
		msg := append([]byte(nil), s.fragBuf...)
		s.completed = append(s.completed, msg)
		s.completedPPI = append(s.completedPPI, s.fragPPI)
		s.fragging = false
		s.fragBuf = nil
	}
	s.lock.Unlock()

	select {
	case s.readNotifier <- struct{}{}:
	default:
	}
}

// skipTo discards any in-progress reassembly for messages abandoned
// by a FORWARD-TSN up through streamSequence (RFC 3758).
func (s *Stream) skipTo(streamSequence uint16) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.fragging = false
	s.fragBuf = nil
}

// Write writes p as one message using the default Payload Protocol
// Identifier.
func (s *Stream) Write(p []byte) (int, error) {
	return s.WriteSCTP(p, s.defaultPayloadType)
}

// WriteSCTP fragments p into defaultMTU-sized DATA chunks and hands them to the owning Association for TSN assignment
// and transmission.
func (s *Stream) WriteSCTP(p []byte, ppi PayloadProtocolIdentifier) (int, error) {
	chunks := s.packetize(p, ppi)
	if err := s.association.sendPayloadData(chunks); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *Stream) packetize(raw []byte, ppi PayloadProtocolIdentifier) []DataChunk {
	s.lock.Lock()
	defer s.lock.Unlock()

	if len(raw) == 0 {
		return []DataChunk{{
			StreamIdentifier:     s.streamIdentifier,
			StreamSequenceNumber: s.sequenceNumber,
			PayloadType:          ppi,
			Beginning:            true,
			Ending:               true,
			Unordered:            s.unordered,
		}}
	}

	var chunks []DataChunk
	i := 0
	for i < len(raw) {
		end := i + defaultMTU
		if end > len(raw) {
			end = len(raw)
		}
		chunks = append(chunks, DataChunk{
			StreamIdentifier:     s.streamIdentifier,
			StreamSequenceNumber: s.sequenceNumber,
			PayloadType:          ppi,
			UserData:             raw[i:end],
			Beginning:            i == 0,
			Ending:               end == len(raw),
			Unordered:            s.unordered,
		})
		i = end
	}
	s.sequenceNumber++
	return chunks
}

// remoteReset marks the stream as reset by a peer RE-CONFIG
// outgoing-stream-reset and wakes any
// blocked reader with errStreamClosed.
func (s *Stream) remoteReset() {
	s.lock.Lock()
	s.resetByPeer = true
	s.closed = true
	s.lock.Unlock()
	select {
	case <-s.closeCh:
	default:
		close(s.closeCh)
	}
}

// Close releases the Stream and unregisters it from the Association.
func (s *Stream) Close() error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil
	}
	s.closed = true
	s.lock.Unlock()

	a := s.association
	a.mu.Lock()
	delete(a.streams, s.streamIdentifier)
	a.mu.Unlock()

	select {
	case <-s.closeCh:
	default:
		close(s.closeCh)
	}
	return nil
}
