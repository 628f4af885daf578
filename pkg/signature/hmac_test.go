package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerify(t *testing.T) {
	secret := []byte("It's a Secret to Everybody")
	payload := []byte("Hello, World!")

	// Reference value from GitHub's webhook validation docs.
	want := "sha256=757107ea0eb2509fc211221cce984b8a37570b6d7586c22c46f4379c8b043e17"
	assert.Equal(t, want, SumSHA256(secret, payload))

	assert.True(t, Verify(secret, payload, want))
	assert.False(t, Verify(secret, payload, "sha256=00"))
	assert.False(t, Verify(secret, payload, want[len(Prefix):]))
	assert.False(t, Verify([]byte("other"), payload, want))
	assert.False(t, Verify(secret, payload, ""))
}
