package invites

import (
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken_AndValidateFormatAndHash(t *testing.T) {
	token, hash, err := GenerateToken()
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(token, TokenPrefix))
	require.True(t, ValidateTokenFormat(token))
	require.Len(t, hash, sha256.Size)
	require.Equal(t, HashToken(token), hash)
}

func TestGenerateToken_Unique(t *testing.T) {
	a, _, err := GenerateToken()
	require.NoError(t, err)
	b, _, err := GenerateToken()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestValidateTokenFormat_InvalidPrefix(t *testing.T) {
	require.False(t, ValidateTokenFormat("nope_abc"))
}

func TestValidateTokenFormat_Rejects(t *testing.T) {
	require.False(t, ValidateTokenFormat(""))
	require.False(t, ValidateTokenFormat("pli_"))
	require.False(t, ValidateTokenFormat("pli_%%%not-base64%%%"))
	require.False(t, ValidateTokenFormat("pli_c2hvcnQ")) // decodes to fewer than TokenBytes
}
