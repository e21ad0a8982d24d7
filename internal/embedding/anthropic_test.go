package embedding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAnthropicProviderRequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewAnthropicProvider("")
	require.ErrorIs(t, err, ErrAPIKeyRequired)
}

func TestNewAnthropicProviderPrefersEnvOverArgument(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	p, err := NewAnthropicProvider("explicit-key")
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestParseVectorExtractsArrayFromProse(t *testing.T) {
	raw := "Sure, here you go:\n[0.1, -0.2, 0.3]\nHope that helps!"
	vec := parseVector(raw)
	require.Len(t, vec, 3)
	require.InDelta(t, 0.1, vec[0], 1e-6)
	require.InDelta(t, -0.2, vec[1], 1e-6)
}

func TestParseVectorNoBracketsReturnsNil(t *testing.T) {
	require.Nil(t, parseVector("no array here"))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "hello", truncate("hello", 10))
	require.Equal(t, "hel", truncate("hello", 3))
}

func TestIsRetryableNilError(t *testing.T) {
	require.False(t, isRetryable(nil))
}
