package passphrase

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourceReadsEnvironment(t *testing.T) {
	t.Setenv("VOCWALLET_TEST_PASS", " spaced secret ")
	src := NewSource("VOCWALLET_TEST_PASS")

	value, err := src.Get()
	require.NoError(t, err)
	require.Equal(t, " spaced secret ", value)

	t.Setenv("VOCWALLET_TEST_PASS", "changed")
	cached, err := src.Get()
	require.NoError(t, err)
	require.Equal(t, value, cached)
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("VOCWALLET_TEST_PASS", "   ")
	_, err := NewSource("VOCWALLET_TEST_PASS").Get()
	require.ErrorContains(t, err, "set but empty")
}
