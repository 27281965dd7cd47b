package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	payload := []byte(`{"kind":"PURCHASE","nonce":"purchase:7:alice","amount":400}`)

	sealed, err := Encrypt(key, payload)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "PURCHASE")

	opened, err := Decrypt(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, payload, opened)
}

func TestEncryptRejectsBadKey(t *testing.T) {
	_, err := Encrypt([]byte("short"), []byte("payload"))
	assert.Error(t, err)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	_, err := Decrypt(key, "not base64 at all!!!")
	assert.Error(t, err)

	_, err = Decrypt(key, "AAAA")
	assert.Error(t, err)
}
