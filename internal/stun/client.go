package stun

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

// RFC 5389 §7.2.1 transaction timing: RTO starts at 500ms, doubles
// each retransmit, 7 total sends, and the client waits Ti after the
// last one before giving up (total ~39.5s).
const (
	initialRTO = 500 * time.Millisecond
	maxRetries = 7
)

// ErrTimeout is returned when a transaction exhausts its retries
// without a matching response.
var ErrTimeout = errors.New("stun: transaction timed out")

// Transport is the minimal send/receive contract the transaction layer
// needs; in production this is the ICE agent's UDP socket, but tests
// can substitute an in-memory pipe.
type Transport interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
}

// Client manages outstanding STUN transactions keyed by transaction ID
// and drives RFC 5389 retransmission timing.
type Client struct {
	mu           sync.Mutex
	transport    Transport
	transactions map[TransactionID]*transaction
}

type transaction struct {
	respCh chan result
	cancel chan struct{}
}

type result struct {
	msg *Message
	err error
}

// NewClient constructs a Client bound to transport.
func NewClient(transport Transport) *Client {
	return &Client{
		transport:    transport,
		transactions: make(map[TransactionID]*transaction),
	}
}

// Transact sends req to dest and waits for a matching response,
// retransmitting with doubling backoff until maxRetries is reached or
// ctx is cancelled. integrityKey, if non-nil, signs the request with
// MESSAGE-INTEGRITY.
func (c *Client) Transact(ctx context.Context, req *Message, dest net.Addr, integrityKey []byte) (*Message, error) {
	tx := &transaction{
		respCh: make(chan result, 1),
		cancel: make(chan struct{}),
	}

	c.mu.Lock()
	c.transactions[req.TransactionID] = tx
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.transactions, req.TransactionID)
		c.mu.Unlock()
	}()

	raw := Encode(req, integrityKey, false)

	rto := initialRTO
	for attempt := 0; attempt < maxRetries; attempt++ {
		if _, err := c.transport.WriteTo(raw, dest); err != nil {
			return nil, err
		}

		if attempt == maxRetries-1 {
			rto = 16 * initialRTO // final wait Rm*RTO (RFC 5389 §7.2.1)
		}
		timer := time.NewTimer(rto)
		select {
		case res := <-tx.respCh:
			timer.Stop()
			return res.msg, res.err
		case <-timer.C:
			rto *= 2
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-tx.cancel:
			timer.Stop()
			return nil, ErrTimeout
		}
	}

	return nil, ErrTimeout
}

// HandlePacket routes an inbound STUN message to its waiting
// transaction, if any. It returns false if raw didn't decode as STUN
// or doesn't match an outstanding transaction (caller should then try
// other demux paths, e.g. an incoming Binding request to answer).
func (c *Client) HandlePacket(raw []byte) bool {
	msg, err := Decode(raw)
	if err != nil {
		return false
	}
	c.mu.Lock()
	tx, ok := c.transactions[msg.TransactionID]
	c.mu.Unlock()
	if !ok {
		return false
	}

	if msg.Type.Class == ClassError {
		code, reason := 0, ""
		if attr, ok := msg.Get(AttrErrorCode); ok {
			code, reason = DecodeErrorCode(attr.Value)
		}
		tx.respCh <- result{err: &TransactionError{Code: code, Reason: reason}}
		return true
	}

	tx.respCh <- result{msg: msg}
	return true
}

// TransactionError reports a STUN error response (class 4xx/5xx).
type TransactionError struct {
	Code   int
	Reason string
}

func (e *TransactionError) Error() string {
	if e.Reason == "" {
		return "stun: error response"
	}
	return "stun: " + e.Reason
}
