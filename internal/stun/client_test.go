package stun

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopbackTransport immediately echoes back a canned Binding success
// response carrying the request's own transaction ID, simulating a
// STUN server without a real socket.
type loopbackTransport struct {
	client  *Client
	respond func(req *Message) *Message
}

func (lt *loopbackTransport) WriteTo(b []byte, addr net.Addr) (int, error) {
	req, err := Decode(b)
	if err != nil {
		return 0, err
	}
	resp := lt.respond(req)
	go lt.client.HandlePacket(Encode(resp, nil, false))
	return len(b), nil
}

func TestClientTransactSuccess(t *testing.T) {
	c := NewClient(nil)
	lt := &loopbackTransport{
		client: c,
		respond: func(req *Message) *Message {
			resp := &Message{
				Type:          Type{Class: ClassSuccess, Method: MethodBinding},
				TransactionID: req.TransactionID,
			}
			resp.Add(AttrXORMappedAddress, EncodeXORMappedAddress(XORAddress{IP: []byte{127, 0, 0, 1}, Port: 1234}, req.TransactionID))
			return resp
		},
	}
	c.transport = lt

	req := NewRequest(MethodBinding)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := c.Transact(ctx, req, &net.UDPAddr{}, nil)
	require.NoError(t, err)
	assert.Equal(t, req.TransactionID, resp.TransactionID)
}

func TestClientTransactErrorResponse(t *testing.T) {
	c := NewClient(nil)
	lt := &loopbackTransport{
		client: c,
		respond: func(req *Message) *Message {
			resp := &Message{
				Type:          Type{Class: ClassError, Method: MethodAllocate},
				TransactionID: req.TransactionID,
			}
			resp.Add(AttrErrorCode, EncodeErrorCode(401, "Unauthorized"))
			return resp
		},
	}
	c.transport = lt

	req := NewRequest(MethodAllocate)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.Transact(ctx, req, &net.UDPAddr{}, nil)
	require.Error(t, err)
	txErr, ok := err.(*TransactionError)
	require.True(t, ok)
	assert.Equal(t, 401, txErr.Code)
}

func TestClientTransactCancelledContext(t *testing.T) {
	c := NewClient(&discardTransport{})
	req := NewRequest(MethodBinding)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Transact(ctx, req, &net.UDPAddr{}, nil)
	assert.Error(t, err)
}

type discardTransport struct{}

func (discardTransport) WriteTo(b []byte, addr net.Addr) (int, error) { return len(b), nil }
