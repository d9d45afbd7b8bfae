package rtcp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceDescriptionRoundTrip(t *testing.T) {
	s := SourceDescription{
		Chunks: []SourceDescriptionChunk{
			{
				Source: 1,
				Items: []SourceDescriptionItem{
					{Type: SDESCNAME, Text: "user@example.com"},
					{Type: SDESTool, Text: "vela-rtc"},
				},
			},
			{
				Source: 2,
				Items:  []SourceDescriptionItem{{Type: SDESCNAME, Text: "other"}},
			},
		},
	}
	raw, err := s.Marshal()
	require.NoError(t, err)

	var got SourceDescription
	require.NoError(t, got.Unmarshal(raw))
	require.Len(t, got.Chunks, 2)
	assert.Equal(t, s.Chunks[0].Source, got.Chunks[0].Source)
	assert.Equal(t, s.Chunks[0].Items, got.Chunks[0].Items)
	assert.Equal(t, s.Chunks[1].Source, got.Chunks[1].Source)
	assert.Equal(t, s.Chunks[1].Items, got.Chunks[1].Items)
}

func TestSourceDescriptionItemMarshalRejectsEndType(t *testing.T) {
	it := SourceDescriptionItem{Type: SDESEnd, Text: "x"}
	_, err := it.marshal()
	assert.Error(t, err)
}

func TestSourceDescriptionItemMarshalRejectsOversizedText(t *testing.T) {
	it := SourceDescriptionItem{Type: SDESCNAME, Text: strings.Repeat("a", 256)}
	_, err := it.marshal()
	assert.Error(t, err)
}
