package password_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/razorphish/core-api-sub000/internal/password"
)

func TestArgon2IDHashAndCompare(t *testing.T) {
	hasher, err := password.New("", 0)
	require.NoError(t, err)

	cred, err := hasher.Hash("Letme1n!")
	require.NoError(t, err)
	require.NotEmpty(t, cred.Salt)
	require.True(t, strings.HasPrefix(cred.Hash, "$argon2id$"))
	require.Contains(t, cred.Hash, cred.Salt)

	require.True(t, hasher.Compare("Letme1n!", cred.Hash))
	require.False(t, hasher.Compare("letme1n!", cred.Hash))
}

func TestBcryptHashAndCompare(t *testing.T) {
	hasher, err := password.New(password.AlgorithmBcrypt, 4)
	require.NoError(t, err)

	cred, err := hasher.Hash("Letme1n!")
	require.NoError(t, err)
	require.Len(t, cred.Salt, 22)
	require.True(t, strings.HasPrefix(cred.Hash, "$2"))

	require.True(t, hasher.Compare("Letme1n!", cred.Hash))
	require.False(t, hasher.Compare("wrong", cred.Hash))
}

func TestSaltsDiffer(t *testing.T) {
	hasher, err := password.New(password.AlgorithmArgon2ID, 0)
	require.NoError(t, err)

	a, err := hasher.Hash("same")
	require.NoError(t, err)
	b, err := hasher.Hash("same")
	require.NoError(t, err)
	require.NotEqual(t, a.Salt, b.Salt)
	require.NotEqual(t, a.Hash, b.Hash)
}

func TestCompareCrossAlgorithm(t *testing.T) {
	bc, err := password.New(password.AlgorithmBcrypt, 4)
	require.NoError(t, err)
	cred, err := bc.Hash("secret")
	require.NoError(t, err)

	argon, err := password.New(password.AlgorithmArgon2ID, 0)
	require.NoError(t, err)
	require.True(t, argon.Compare("secret", cred.Hash))
}

func TestCompareMalformedHash(t *testing.T) {
	for _, hash := range []string{
		"",
		"plain",
		"$argon2id$v=19$m=65536,t=3$abc$def",
		"$argon2id$v=1$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$2a$10$short",
	} {
		require.False(t, password.Compare("anything", hash), hash)
	}
}

func TestNewRejectsUnknownAlgorithm(t *testing.T) {
	_, err := password.New("md5", 0)
	require.Error(t, err)

	_, err = password.New(password.AlgorithmBcrypt, 99)
	require.Error(t, err)
}
