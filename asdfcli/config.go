// Package asdfcli bridges CLI flags to [asdf.Config], following the same
// Flags/Config/RegisterFlags/RegisterCompletions/NewXxx shape the teacher's
// magicschema and log packages use for their own CLI surfaces.
package asdfcli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"go.asdf.sh/asdf"
)

// Flags holds CLI flag names for engine configuration, allowing callers to
// customize flag names while keeping sensible defaults via [NewConfig].
type Flags struct {
	Validate              string
	StandardVersion       string
	ArrayInlineThreshold  string
	AllArrayStorage       string
	AllArrayCompression   string
	IgnoreMissingExts     string
	StrictExtensionCheck  string
	IgnoreUnrecognizedTag string
	IgnoreVersionMismatch string
	PadBlocks             string
	Memmap                string
	VerifyChecksums       string
}

// Config holds CLI flag values for engine configuration.
//
// Create instances with [NewConfig] and register CLI flags with
// [Config.RegisterFlags]. Use [Config.NewEngineConfig] to produce an
// [asdf.Config] for [asdf.Open]/[asdf.Create]/[asdf.OpenForUpdate].
type Config struct {
	Flags Flags

	StandardVersion       string
	AllArrayStorage       string
	AllArrayCompression   string
	ArrayInlineThreshold  int
	Validate              bool
	IgnoreMissingExts     bool
	StrictExtensionCheck  bool
	IgnoreUnrecognizedTag bool
	IgnoreVersionMismatch bool
	PadBlocks             bool
	Memmap                bool
	VerifyChecksums       bool
}

// NewConfig returns a new [Config] with default flag names.
func NewConfig() *Config {
	return &Config{
		Flags: Flags{
			Validate:              "validate",
			StandardVersion:       "standard-version",
			ArrayInlineThreshold:  "array-inline-threshold",
			AllArrayStorage:       "all-array-storage",
			AllArrayCompression:   "all-array-compression",
			IgnoreMissingExts:     "ignore-missing-extensions",
			StrictExtensionCheck:  "strict-extension-check",
			IgnoreUnrecognizedTag: "ignore-unrecognized-tag",
			IgnoreVersionMismatch: "ignore-version-mismatch",
			PadBlocks:             "pad-blocks",
			Memmap:                "memmap",
			VerifyChecksums:       "verify-checksums",
		},
	}
}

// RegisterFlags adds engine configuration flags to the given
// [*pflag.FlagSet].
func (c *Config) RegisterFlags(flags *pflag.FlagSet) {
	def := asdf.DefaultConfig()

	flags.BoolVar(&c.Validate, c.Flags.Validate, def.ValidateOnRead,
		"validate the tree against its schema on open")
	flags.StringVar(&c.StandardVersion, c.Flags.StandardVersion, def.DefaultVersion,
		fmt.Sprintf("ASDF Standard version for new files, one of: %s",
			strings.Join(asdf.RecognizedStandardVersions, ", ")))
	flags.IntVar(&c.ArrayInlineThreshold, c.Flags.ArrayInlineThreshold, def.ArrayInlineThreshold,
		"arrays with at most this many elements serialize inline instead of as a block")
	flags.StringVar(&c.AllArrayStorage, c.Flags.AllArrayStorage, "",
		"force this storage class (internal, inline, streamed, external) for every array on write")
	flags.StringVar(&c.AllArrayCompression, c.Flags.AllArrayCompression, "",
		"compression label (e.g. zlib, bzp2); blocks are written uncompressed whatever its value")
	flags.BoolVar(&c.IgnoreMissingExts, c.Flags.IgnoreMissingExts, def.IgnoreMissingExtensions,
		"only checked against --strict-extension-check; declared extensions are not checked")
	flags.BoolVar(&c.StrictExtensionCheck, c.Flags.StrictExtensionCheck, def.StrictExtensionCheck,
		"only checked against --ignore-missing-extensions; no unknown-tag or missing-extension diagnostics are raised")
	flags.BoolVar(&c.IgnoreUnrecognizedTag, c.Flags.IgnoreUnrecognizedTag, def.IgnoreUnrecognizedTag,
		"no effect: unknown tags raise no diagnostic whether or not it is set")
	flags.BoolVar(&c.IgnoreVersionMismatch, c.Flags.IgnoreVersionMismatch, def.IgnoreVersionMismatch,
		"no effect: no version-mismatch warning is raised whether or not it is set")
	flags.BoolVar(&c.PadBlocks, c.Flags.PadBlocks, def.PadBlocks,
		"round each internal block's allocated size up to leave room for later growth in place")
	flags.BoolVar(&c.Memmap, c.Flags.Memmap, def.Memmap,
		"no effect: block payloads are memory-mapped whenever the backing file supports it")
	flags.BoolVar(&c.VerifyChecksums, c.Flags.VerifyChecksums, def.VerifyChecksums,
		"verify block payload checksums on read")
}

// RegisterCompletions registers shell completions for engine configuration
// flags on cmd.
func (c *Config) RegisterCompletions(cmd *cobra.Command) error {
	err := cmd.RegisterFlagCompletionFunc(c.Flags.StandardVersion,
		cobra.FixedCompletions(asdf.RecognizedStandardVersions, cobra.ShellCompDirectiveNoFileComp))
	if err != nil {
		return fmt.Errorf("registering %s completion: %w", c.Flags.StandardVersion, err)
	}

	storageClasses := []string{
		string(asdf.StorageInternal), string(asdf.StorageInline),
		string(asdf.StorageStreamed), string(asdf.StorageExternal),
	}

	err = cmd.RegisterFlagCompletionFunc(c.Flags.AllArrayStorage,
		cobra.FixedCompletions(storageClasses, cobra.ShellCompDirectiveNoFileComp))
	if err != nil {
		return fmt.Errorf("registering %s completion: %w", c.Flags.AllArrayStorage, err)
	}

	return nil
}

// NewEngineConfig builds an [asdf.Config] from the flag values, starting
// from [asdf.DefaultConfig] and layering the parsed flags on top, then
// validates the combination (spec.md §7 StrictExtensionCheck +
// IgnoreMissingExtensions is a fatal misconfiguration, not just a CLI
// footgun).
func (c *Config) NewEngineConfig() (asdf.Config, error) {
	cfg := asdf.DefaultConfig()
	cfg.ValidateOnRead = c.Validate
	cfg.DefaultVersion = c.StandardVersion
	cfg.ArrayInlineThreshold = c.ArrayInlineThreshold
	cfg.AllArrayStorage = asdf.StorageClass(c.AllArrayStorage)
	cfg.AllArrayCompression = c.AllArrayCompression
	cfg.IgnoreMissingExtensions = c.IgnoreMissingExts
	cfg.StrictExtensionCheck = c.StrictExtensionCheck
	cfg.IgnoreUnrecognizedTag = c.IgnoreUnrecognizedTag
	cfg.IgnoreVersionMismatch = c.IgnoreVersionMismatch
	cfg.PadBlocks = c.PadBlocks
	cfg.Memmap = c.Memmap
	cfg.VerifyChecksums = c.VerifyChecksums

	if err := cfg.Validate(); err != nil {
		return asdf.Config{}, err
	}

	return cfg, nil
}
