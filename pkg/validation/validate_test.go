package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateContent(t *testing.T) {
	SetRules(Rules{})
	require.NoError(t, ValidateContent("hello"))
	require.Error(t, ValidateContent(""))
	require.Error(t, ValidateContent("   \t\n  "))

	// zero cap means unlimited
	require.NoError(t, ValidateContent(strings.Repeat("x", 1<<20)))

	SetRules(Rules{MaxContentBytes: 10})
	defer SetRules(Rules{})
	require.NoError(t, ValidateContent("short"))
	require.Error(t, ValidateContent("this is definitely too long"))
}

func TestValidateEmoji(t *testing.T) {
	require.NoError(t, ValidateEmoji("👍"))
	require.NoError(t, ValidateEmoji(":thumbsup:"))
	require.Error(t, ValidateEmoji(""))
	require.Error(t, ValidateEmoji("  "))
}

func TestValidateName(t *testing.T) {
	require.NoError(t, ValidateName("Ada"))
	require.Error(t, ValidateName(" \t"))
}
