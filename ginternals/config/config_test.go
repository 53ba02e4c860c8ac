package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mystor/git-revise/ginternals/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestGet(t *testing.T) {
	t.Parallel()

	t.Run("simple key", func(t *testing.T) {
		t.Parallel()

		p := writeConfig(t, "[user]\n\tname = Alice\n")
		cfg, err := config.LoadFiles(p)
		require.NoError(t, err)

		v, ok := cfg.Get("user.name")
		require.True(t, ok)
		assert.Equal(t, "Alice", v)
	})

	t.Run("missing key", func(t *testing.T) {
		t.Parallel()

		p := writeConfig(t, "[user]\n\tname = Alice\n")
		cfg, err := config.LoadFiles(p)
		require.NoError(t, err)

		_, ok := cfg.Get("user.email")
		assert.False(t, ok)
	})

	t.Run("case insensitive", func(t *testing.T) {
		t.Parallel()

		p := writeConfig(t, "[revise]\n\tgpgSign = true\n")
		cfg, err := config.LoadFiles(p)
		require.NoError(t, err)

		_, ok := cfg.Get("revise.gpgsign")
		assert.True(t, ok)
	})

	t.Run("local overrides global", func(t *testing.T) {
		t.Parallel()

		global := writeConfig(t, "[rebase]\n\tautoSquash = false\n")
		local := writeConfig(t, "[rebase]\n\tautoSquash = true\n")
		cfg, err := config.LoadFiles(global, local)
		require.NoError(t, err)

		auto, ok := cfg.AutoSquash()
		require.True(t, ok)
		assert.True(t, auto)
	})

	t.Run("missing files are skipped", func(t *testing.T) {
		t.Parallel()

		p := writeConfig(t, "[user]\n\tname = Alice\n")
		cfg, err := config.LoadFiles(filepath.Join(t.TempDir(), "nope"), p)
		require.NoError(t, err)

		_, ok := cfg.Get("user.name")
		assert.True(t, ok)
	})
}

func TestParseBool(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input    string
		expected bool
	}{
		{"true", true},
		{"yes", true},
		{"on", true},
		{"1", true},
		{"42", true},
		{"false", false},
		{"no", false},
		{"off", false},
		{"0", false},
		{"", false},
		{"TRUE", true},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()

			v, err := config.ParseBool(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, v)
		})
	}

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		_, err := config.ParseBool("maybe")
		require.ErrorIs(t, err, config.ErrInvalidBool)
	})
}

func TestPrecedenceChains(t *testing.T) {
	t.Parallel()

	t.Run("revise.gpgSign overrides commit.gpgSign", func(t *testing.T) {
		t.Parallel()

		p := writeConfig(t, "[commit]\n\tgpgSign = true\n[revise]\n\tgpgSign = false\n")
		cfg, err := config.LoadFiles(p)
		require.NoError(t, err)

		sign, ok := cfg.GpgSign()
		require.True(t, ok)
		assert.False(t, sign)
	})

	t.Run("falls back to rerere.enabled", func(t *testing.T) {
		t.Parallel()

		p := writeConfig(t, "[rerere]\n\tenabled = true\n")
		cfg, err := config.LoadFiles(p)
		require.NoError(t, err)

		enabled, ok := cfg.Rerere()
		require.True(t, ok)
		assert.True(t, enabled)
	})

	t.Run("unset", func(t *testing.T) {
		t.Parallel()

		p := writeConfig(t, "[user]\n\tname = Alice\n")
		cfg, err := config.LoadFiles(p)
		require.NoError(t, err)

		_, ok := cfg.Rerere()
		assert.False(t, ok)
		assert.False(t, cfg.RerereAutoUpdate())
	})
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	p := writeConfig(t, "[user]\n\tname = Alice\n")
	cfg, err := config.LoadFiles(p)
	require.NoError(t, err)

	assert.Equal(t, "gpg", cfg.SigningProgram())
	assert.Equal(t, "#", cfg.CommentChar())

	_, ok := cfg.SigningKey()
	assert.False(t, ok)
	_, ok = cfg.SequenceEditor()
	assert.False(t, ok)
}

func TestBareBooleanKey(t *testing.T) {
	t.Parallel()

	p := writeConfig(t, "[rerere]\n\tenabled\n")
	cfg, err := config.LoadFiles(p)
	require.NoError(t, err)

	enabled, ok := cfg.Rerere()
	require.True(t, ok)
	assert.True(t, enabled)
}
