package csvio

import (
	"testing"

	"github.com/cmdrvl/rvl/internal/refusal"
	"github.com/stretchr/testify/assert"
)

func TestGuardStripsUTF8BOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("a,b\n")...)
	out, r := Guard("old", data)
	assert.Nil(t, r)
	assert.Equal(t, "a,b\n", string(out))
}

func TestGuardRefusesUTF16BOM(t *testing.T) {
	data := []byte{0xFF, 0xFE, 'a', 0x00}
	_, r := Guard("old", data)
	assert.NotNil(t, r)
	assert.Equal(t, refusal.EEncoding, r.Code)
}

func TestGuardRefusesNULInFirst8KiB(t *testing.T) {
	data := append([]byte("a,b\n"), 0x00)
	_, r := Guard("old", data)
	assert.NotNil(t, r)
	assert.Equal(t, refusal.EEncoding, r.Code)
}

func TestGuardPassesPlainASCII(t *testing.T) {
	out, r := Guard("old", []byte("a,b\n1,2\n"))
	assert.Nil(t, r)
	assert.Equal(t, "a,b\n1,2\n", string(out))
}
