package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureRoundTrip(t *testing.T) {
	secret := "shared-secret"
	body := []byte(`{"case_id":"abc","decision":"accept"}`)

	sig := ComputeSignature(secret, body)
	assert.True(t, VerifySignature(secret, body, sig))
	assert.True(t, VerifySignature(secret, body, SignaturePrefix+sig), "sha256= prefix accepted")
}

func TestSignatureRejectsMutation(t *testing.T) {
	secret := "shared-secret"
	body := []byte(`{"case_id":"abc"}`)
	sig := ComputeSignature(secret, body)

	t.Run("mutated body", func(t *testing.T) {
		mutated := append([]byte{}, body...)
		mutated[0] ^= 0x01
		assert.False(t, VerifySignature(secret, mutated, sig))
	})

	t.Run("mutated signature", func(t *testing.T) {
		bad := []byte(sig)
		if bad[0] == 'a' {
			bad[0] = 'b'
		} else {
			bad[0] = 'a'
		}
		assert.False(t, VerifySignature(secret, body, string(bad)))
	})

	t.Run("wrong secret", func(t *testing.T) {
		assert.False(t, VerifySignature("other-secret", body, sig))
	})

	t.Run("empty signature", func(t *testing.T) {
		assert.False(t, VerifySignature(secret, body, ""))
		assert.False(t, VerifySignature(secret, body, SignaturePrefix))
	})
}

func TestNewToken(t *testing.T) {
	token, hash, err := NewToken()
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Len(t, hash, 64, "sha256 hex digest")
	assert.Equal(t, hash, HashToken(token))

	other, _, err := NewToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)
	assert.True(t, CheckPassword(hash, "s3cret"))
	assert.False(t, CheckPassword(hash, "wrong"))
}
