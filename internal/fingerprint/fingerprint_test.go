package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashDeterministic(t *testing.T) {
	a := Hash([]byte("image bytes"))
	b := Hash([]byte("image bytes"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestHashDistinguishesContent(t *testing.T) {
	assert.NotEqual(t, Hash([]byte("image bytes")), Hash([]byte("other bytes")))
}

func TestHashKnownVector(t *testing.T) {
	// SHA-256 of the empty string.
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Hash(nil))
}
