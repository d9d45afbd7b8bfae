package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidatePriorityFormula(t *testing.T) {
	// RFC 8445 §5.1.2.1: type_pref*2^24 + local_pref*2^8 + (256-component).
	got := Priority(CandidateTypeHost, 65535, 1)
	want := uint32(126)<<24 | uint32(65535)<<8 | uint32(256-1)
	assert.Equal(t, want, got)
}

func TestCandidateTypePreferenceOrdering(t *testing.T) {
	assert.Greater(t, CandidateTypeHost.typePreference(), CandidateTypePeerReflexive.typePreference())
	assert.Greater(t, CandidateTypePeerReflexive.typePreference(), CandidateTypeServerReflexive.typePreference())
	assert.Greater(t, CandidateTypeServerReflexive.typePreference(), CandidateTypeRelay.typePreference())
}

func TestCandidateToSDPParseCandidateRoundTrip(t *testing.T) {
	c := Candidate{
		Foundation: "1",
		Component:  1,
		Transport:  "udp",
		Priority:   Priority(CandidateTypeHost, 65535, 1),
		Address:    "192.168.1.1",
		Port:       54321,
		Type:       CandidateTypeHost,
		Generation: 0,
		Ufrag:      "abcd",
	}

	sdp := c.ToSDP()
	parsed, err := ParseCandidate(sdp)
	require.NoError(t, err)

	assert.Equal(t, c.Foundation, parsed.Foundation)
	assert.Equal(t, c.Component, parsed.Component)
	assert.Equal(t, c.Transport, parsed.Transport)
	assert.Equal(t, c.Priority, parsed.Priority)
	assert.Equal(t, c.Address, parsed.Address)
	assert.Equal(t, c.Port, parsed.Port)
	assert.Equal(t, c.Type, parsed.Type)
	assert.Equal(t, c.Ufrag, parsed.Ufrag)
}

func TestParseCandidateWithRelatedAddress(t *testing.T) {
	s := "1 1 udp 16777215 203.0.113.1 6000 typ srflx raddr 192.168.1.1 rport 54321 generation 0"
	c, err := ParseCandidate(s)
	require.NoError(t, err)
	assert.Equal(t, CandidateTypeServerReflexive, c.Type)
	assert.Equal(t, "192.168.1.1", c.RelatedAddress)
	assert.Equal(t, 54321, c.RelatedPort)
}

func TestParseCandidateAcceptsCandidatePrefix(t *testing.T) {
	s := "candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host generation 0"
	c, err := ParseCandidate(s)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", c.Address)
}

func TestParseCandidateRejectsMalformed(t *testing.T) {
	_, err := ParseCandidate("garbage")
	assert.Error(t, err)
}
