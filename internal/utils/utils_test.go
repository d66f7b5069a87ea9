package utils_test

import (
	"testing"

	"github.com/jrsteele09/go-identity-server/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestRandomDigits(t *testing.T) {
	code, err := utils.RandomDigits(6)
	require.NoError(t, err)
	require.Len(t, code, 6)
	for _, c := range code {
		require.True(t, c >= '0' && c <= '9')
	}
}

func TestRandomURLTokenIsUnique(t *testing.T) {
	a, err := utils.RandomURLToken(32)
	require.NoError(t, err)
	b, err := utils.RandomURLToken(32)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Len(t, a, 43)
}

func TestValueAndPtr(t *testing.T) {
	var s *string
	require.Equal(t, "", utils.Value(s))
	require.Equal(t, "x", utils.Value(utils.Ptr("x")))
}

func TestSHA256HexIsStable(t *testing.T) {
	require.Equal(t, utils.SHA256Hex("abc"), utils.SHA256Hex("abc"))
	require.Len(t, utils.SHA256Hex("abc"), 64)
}
