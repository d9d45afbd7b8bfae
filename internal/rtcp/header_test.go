package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderMarshalUnmarshalRoundTrip(t *testing.T) {
	h := Header{Version: 2, Padding: true, Count: 3, Type: TypeReceiverReport, Length: 5}
	raw, err := h.Marshal()
	require.NoError(t, err)
	require.Len(t, raw, 4)

	var got Header
	require.NoError(t, got.Unmarshal(raw))
	assert.Equal(t, h.Version, got.Version)
	assert.Equal(t, h.Padding, got.Padding)
	assert.Equal(t, h.Count, got.Count)
	assert.Equal(t, h.Type, got.Type)
	assert.Equal(t, h.Length, got.Length)
}

func TestHeaderMarshalRejectsTooManyReports(t *testing.T) {
	h := Header{Count: 32, Type: TypeReceiverReport}
	_, err := h.Marshal()
	assert.Error(t, err)
}

func TestHeaderUnmarshalRejectsShortBuffer(t *testing.T) {
	var h Header
	assert.Error(t, h.Unmarshal([]byte{0, 1}))
}
