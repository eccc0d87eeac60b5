package asdfcli_test

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.asdf.sh/asdf"
	"go.asdf.sh/asdf/asdfcli"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := asdfcli.NewConfig()

	cmd := &cobra.Command{Use: "test"}
	cfg.RegisterFlags(cmd.Flags())

	got, err := cfg.NewEngineConfig()
	require.NoError(t, err)
	assert.Equal(t, asdf.DefaultConfig(), got)
}

func TestConfigOverrides(t *testing.T) {
	t.Parallel()

	cfg := asdfcli.NewConfig()

	cmd := &cobra.Command{Use: "test"}
	cfg.RegisterFlags(cmd.Flags())

	require.NoError(t, cmd.ParseFlags([]string{
		"--" + cfg.Flags.StandardVersion, "1.5.0",
		"--" + cfg.Flags.PadBlocks,
		"--" + cfg.Flags.AllArrayStorage, "inline",
	}))

	got, err := cfg.NewEngineConfig()
	require.NoError(t, err)
	assert.Equal(t, "1.5.0", got.DefaultVersion)
	assert.True(t, got.PadBlocks)
	assert.Equal(t, asdf.StorageInline, got.AllArrayStorage)
}

func TestConfigRejectsIncompatibleFlags(t *testing.T) {
	t.Parallel()

	cfg := asdfcli.NewConfig()

	cmd := &cobra.Command{Use: "test"}
	cfg.RegisterFlags(cmd.Flags())

	require.NoError(t, cmd.ParseFlags([]string{
		"--" + cfg.Flags.StrictExtensionCheck,
		"--" + cfg.Flags.IgnoreMissingExts,
	}))

	_, err := cfg.NewEngineConfig()
	require.Error(t, err)
	assert.ErrorIs(t, err, asdf.ErrIncompatibleOptions)
}

func TestRegisterCompletions(t *testing.T) {
	t.Parallel()

	cfg := asdfcli.NewConfig()

	cmd := &cobra.Command{Use: "test"}
	cfg.RegisterFlags(cmd.Flags())

	require.NoError(t, cfg.RegisterCompletions(cmd))

	completionFn, ok := cmd.GetFlagCompletionFunc(cfg.Flags.StandardVersion)
	require.True(t, ok)

	values, directive := completionFn(cmd, nil, "")
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)
	assert.Equal(t, asdf.RecognizedStandardVersions, values)
}
