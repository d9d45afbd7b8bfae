package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostFoundationDeterministic(t *testing.T) {
	a := hostFoundation("192.168.1.1")
	b := hostFoundation("192.168.1.1")
	assert.Equal(t, a, b)
}

func TestHostFoundationDiffersByAddress(t *testing.T) {
	assert.NotEqual(t, hostFoundation("192.168.1.1"), hostFoundation("192.168.1.2"))
}

func TestItoa(t *testing.T) {
	assert.Equal(t, "0", itoa(0))
	assert.Equal(t, "42", itoa(42))
	assert.Equal(t, "123456", itoa(123456))
}
