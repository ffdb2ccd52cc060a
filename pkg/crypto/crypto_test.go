package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	v, err := NewVerifier(0)
	require.NoError(t, err)

	msg := []byte("mydb-" + kp.PublicKey + ":user:alice:Alice")
	sig := kp.Sign(msg)

	require.NoError(t, v.Verify(kp.PublicKey, sig, msg))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	v, err := NewVerifier(0)
	require.NoError(t, err)

	sig := kp.Sign([]byte("original"))
	err = v.Verify(kp.PublicKey, sig, []byte("tampered"))
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyCachesResult(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	v, err := NewVerifier(0)
	require.NoError(t, err)

	msg := []byte("hello")
	sig := kp.Sign(msg)

	require.NoError(t, v.Verify(kp.PublicKey, sig, msg))
	require.Equal(t, 1, v.cache.Len())
	require.NoError(t, v.Verify(kp.PublicKey, sig, msg))
	require.Equal(t, 1, v.cache.Len())
}

func TestVerifyRejectsMalformedKey(t *testing.T) {
	v, err := NewVerifier(0)
	require.NoError(t, err)

	err = v.Verify("not-hex", "not-hex", []byte("hello"))
	require.ErrorIs(t, err, ErrInvalidSignature)
}
