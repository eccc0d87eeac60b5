package asdf

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"go.asdf.sh/asdf/block"
	"go.asdf.sh/asdf/compress"
	"go.asdf.sh/asdf/extension"
	"go.asdf.sh/asdf/fileio"
	"go.asdf.sh/asdf/resource"
	"go.asdf.sh/asdf/schema"
	"go.asdf.sh/asdf/serialctx"
	"go.asdf.sh/asdf/tree"
	"go.asdf.sh/asdf/update"
	"go.asdf.sh/asdf/version"
)

// engineSoftware identifies this engine as the Software entry attached to
// every history entry it writes (spec.md §3 "History entry").
func engineSoftware() tree.Software {
	return tree.Software{Name: "go-asdf", Version: version.Version}
}

// FileFormatVersion is the on-disk container version this engine writes,
// distinct from the ASDF Standard version used by the YAML tree itself
// (spec.md §6 "#ASDF <version>" vs "#ASDF_STANDARD <version>").
const FileFormatVersion = "1.0.0"

// FileFacade is the single entry point spec.md §2 describes: open or
// create a file, read and mutate its tree, and write it back out in place
// or from scratch. It is the first package in this module allowed to
// import every leaf package together -- block, compress, extension,
// fileio, resource, schema, serialctx, tree, and update -- and wire them
// into one pipeline, the way the teacher's magicschema.Generator is the
// one place that wires annotators, the AST walker, and the schema builder
// together.
type FileFacade struct {
	f    fileio.File
	path string // "" when built over a caller-supplied fileio.File

	cfg Config
	reg *extension.Registry

	resources *resource.Store
	schemas   *schema.Engine
	codec     *tree.Codec
	blocks    *block.Store

	sink   *DiagnosticSink
	logger *slog.Logger
	lock   *flock.Flock // non-nil only when opened via OpenForUpdate

	version         string
	standardVersion string

	// Tree is the decoded root document: *tree.Mapping, tree.Sequence, a
	// converter's reconstructed object, or nil for a brand-new file until
	// the caller assigns one.
	Tree any
}

// Option configures a FileFacade at construction time.
type Option func(*facadeOptions)

type facadeOptions struct {
	cfg       Config
	haveCfg   bool
	userExts  []extension.Extension
	providers []resource.Provider
	logger    *slog.Logger
}

// WithFacadeConfig overrides the facade's Config (default GlobalConfig()).
func WithFacadeConfig(cfg Config) Option {
	return func(o *facadeOptions) { o.cfg, o.haveCfg = cfg, true }
}

// WithExtensions adds caller-supplied extensions, given highest precedence
// per spec.md §3/§5 ordering guarantees (user first, then third-party
// alphabetical, then built-in last).
func WithExtensions(exts ...extension.Extension) Option {
	return func(o *facadeOptions) { o.userExts = append(o.userExts, exts...) }
}

// WithResourceProvider layers an additional resource.Provider over the
// built-in draft-04 meta-schema provider, highest precedence first.
func WithResourceProvider(p resource.Provider) Option {
	return func(o *facadeOptions) { o.providers = append(o.providers, p) }
}

// WithLogger attaches a *slog.Logger that receives every Diagnostic as it
// is raised (via DiagnosticSink) and every extension-registry build
// warning.
func WithLogger(logger *slog.Logger) Option {
	return func(o *facadeOptions) { o.logger = logger }
}

func newFacade(f fileio.File, path string, opts ...Option) *FileFacade {
	var resolved facadeOptions

	for _, opt := range opts {
		opt(&resolved)
	}

	cfg := GlobalConfig()
	if resolved.haveCfg {
		cfg = resolved.cfg
	}

	ff := &FileFacade{
		f:      f,
		path:   path,
		cfg:    cfg,
		logger: resolved.logger,
		sink:   NewDiagnosticSink(resolved.logger),
	}

	builtins := []extension.Extension{tree.CoreExtension(), compress.BuiltinExtension()}
	ff.reg = extension.New(extension.Order(resolved.userExts, nil, builtins))
	ff.reg.LogWarnings(ff.logger)

	providers := append(append([]resource.Provider(nil), resolved.providers...), resource.Draft04Provider())
	ff.resources = resource.NewStore(providers...)
	ff.schemas = schema.NewEngine(ff.resources, ff.reg)
	ff.codec = tree.NewCodec(ff.reg)

	return ff
}

// Open reads an existing ASDF file from path: header lines, the YAML tree,
// and the block store, validating the decoded tree if cfg.ValidateOnRead.
func Open(path string, opts ...Option) (*FileFacade, error) {
	osf, err := fileio.OpenOSFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrIO, path, err)
	}

	ff := newFacade(osf, path, opts...)
	if err := ff.read(); err != nil {
		_ = osf.Close()
		return nil, err
	}

	return ff, nil
}

// OpenForUpdate is Open plus an exclusive, process-wide advisory lock on
// path held for the lifetime of the facade: a second OpenForUpdate call
// against the same path, from this process or another, blocks until Close
// releases it. Use this instead of Open whenever the caller intends to call
// Update, so concurrent in-place rewrites can't interleave (spec.md §5
// "concurrent writers to the same path are the caller's responsibility" --
// OpenForUpdate is the caller-side mechanism that discharges it).
func OpenForUpdate(path string, opts ...Option) (*FileFacade, error) {
	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("%w: locking %s: %w", ErrIO, path, err)
	}

	ff, err := Open(path, opts...)
	if err != nil {
		_ = fl.Unlock()
		return nil, err
	}

	ff.lock = fl

	return ff, nil
}

// Create starts a brand-new, in-memory file with no tree yet; the caller
// sets Tree before calling WriteTo(path). Nothing is written to disk until
// WriteTo succeeds (spec.md §5 "a failure mid-write leaves the target file
// path unchanged").
func Create(opts ...Option) *FileFacade {
	ff := newFacade(fileio.NewMemoryFile(), "", opts...)
	ff.version = FileFormatVersion
	ff.standardVersion = ff.cfg.DefaultVersion

	if ff.standardVersion == "" {
		ff.standardVersion = LatestStandardVersion
	}

	ff.blocks = block.NewStore(ff.cfg.PadBlocks, ff.cfg.VerifyChecksums)

	return ff
}

// read parses the header, tree, and block store from ff.f, which must
// already be positioned at offset 0.
func (ff *FileFacade) read() error {
	header, err := readHeaderLines(ff.f)
	if err != nil {
		return err
	}

	ff.version = header.version
	ff.standardVersion = header.standardVersion

	bounds, err := findTreeBounds(ff.f, header.bodyStart)
	if err != nil {
		return err
	}

	if _, err := ff.f.Seek(header.bodyStart, 0); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	treeBytes := make([]byte, bounds.docEnd-header.bodyStart)
	if _, err := readFullAt(ff.f, treeBytes); err != nil {
		return fmt.Errorf("%w: reading tree: %w", ErrIO, err)
	}

	if _, err := ff.f.Seek(bounds.blocksStart, 0); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	blocks, err := block.ReadBlocks(ff.f, ff.cfg.PadBlocks, ff.cfg.VerifyChecksums)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBlockMalformed, err)
	}

	ff.blocks = blocks

	ctx := serialctx.NewReadContext(ff.standardVersion, "", ff.reg, ff.blocks)

	decoded, err := ff.codec.Decode(treeBytes, ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHeaderMalformed, err)
	}

	ff.Tree = decoded

	if n := ctx.UnusedKeys(); n > 0 {
		return fmt.Errorf("%w: %d block key(s) generated but never used", ErrUnusedBlockKey, n)
	}

	if ff.cfg.ValidateOnRead {
		if err := ff.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Validate runs the SchemaEngine against the current Tree using the root
// tag's schema (when the root is tagged) and returns ErrSchemaViolation if
// any check fails.
func (ff *FileFacade) Validate() error {
	tagged, ok := ff.Tree.(interface{ ASDFTag() string })
	if !ok {
		return nil
	}

	td, ok := ff.reg.TagDefinition(tagged.ASDFTag())
	if !ok || len(td.SchemaURIs) == 0 {
		return nil
	}

	for _, uri := range td.SchemaURIs {
		if err := ff.schemas.Validate(uri, ff.Tree); err != nil {
			return fmt.Errorf("%w: %w", ErrSchemaViolation, err)
		}
	}

	return nil
}

// Diagnostics returns every non-fatal diagnostic accumulated so far.
func (ff *FileFacade) Diagnostics() []Diagnostic {
	return ff.sink.Diagnostics()
}

// Close releases any memory maps the block store opened and closes the
// underlying file, in that order (spec.md §5 "closing the facade must
// unmap before closing the file handle"), then releases the OpenForUpdate
// lock, if one was taken.
func (ff *FileFacade) Close() error {
	err := ff.f.Close()

	if ff.lock != nil {
		if unlockErr := ff.lock.Unlock(); unlockErr != nil && err == nil {
			err = fmt.Errorf("%w: unlocking: %w", ErrIO, unlockErr)
		}
	}

	return err
}

// WriteTo serializes the current Tree and block store to path from
// scratch: header lines, tree, internal blocks, index trailer. Writing
// goes to a temporary path in the same directory and is renamed over path
// only on success, so a failure leaves path untouched (spec.md §5).
func (ff *FileFacade) WriteTo(path string) error {
	ff.recordHistory("file written")

	tmp := path + ".tmp"

	osf, err := fileio.OpenOSFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrIO, tmp, err)
	}

	if err := ff.writeFull(osf); err != nil {
		_ = osf.Close()
		_ = os.Remove(tmp)

		return err
	}

	if err := osf.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: renaming into place: %w", ErrIO, err)
	}

	// Reopen the now-renamed file so ff.f tracks the real path -- a
	// subsequent Update() call operates on this facade directly rather
	// than requiring a fresh Open.
	reopened, err := fileio.OpenOSFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("%w: reopening %s after write: %w", ErrIO, path, err)
	}

	_ = ff.f.Close()
	ff.f = reopened
	ff.path = path

	return nil
}

// recordHistory appends a HistoryEntry to ff.Tree in place (spec.md §3
// "History entry": every mutating write appends one). A no-op if ff.Tree
// is not a *tree.Mapping (e.g. Create hasn't had a tree assigned yet, or
// the root document is a bare sequence/scalar with nowhere to carry one).
func (ff *FileFacade) recordHistory(description string) {
	ff.Tree = tree.AppendHistoryEntry(ff.Tree, tree.HistoryEntry{
		Description: description,
		Time:        time.Now().UTC(),
		Software:    []tree.Software{engineSoftware()},
	})
}

// arrayPolicy translates ff.cfg's storage-policy fields into the
// serialctx.ArrayPolicy ndarray converters consult (spec.md §4.3 write-path
// step 1, "Apply the caller's storage policy").
func (ff *FileFacade) arrayPolicy() serialctx.ArrayPolicy {
	return serialctx.ArrayPolicy{
		InlineThreshold: ff.cfg.ArrayInlineThreshold,
		AllStorage:      string(ff.cfg.AllArrayStorage),
		AllCompression:  ff.cfg.AllArrayCompression,
	}
}

// writeFull writes the header, tree, internal blocks, and index trailer to
// f in full, used both by WriteTo and as UpdateEngine's fullRewrite
// fallback.
func (ff *FileFacade) writeFull(f fileio.File) error {
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	blocks := block.NewStore(ff.cfg.PadBlocks, ff.cfg.VerifyChecksums)
	writeCtx := serialctx.NewWriteContext(ff.standardVersion, "", ff.reg, blocks)
	writeCtx.SetArrayPolicy(ff.arrayPolicy())

	treeBytes, err := ff.codec.Encode(ff.Tree, writeCtx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	}

	if err := writeHeaderLines(f, ff.version, ff.standardVersion); err != nil {
		return err
	}

	if _, err := f.Write(treeBytes); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	if _, err := f.Write([]byte("...\n")); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	var blockSize int64
	if ff.cfg.PadBlocks {
		blockSize = int64(os.Getpagesize())
	}

	offsets, err := blocks.WriteInternalBlocks(f, blockSize)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	hasStreamed := false

	for _, b := range blocks.Blocks() {
		if b.Storage == StorageStreamed {
			hasStreamed = true
		}
	}

	if !hasStreamed {
		if err := block.WriteIndexTrailer(f, offsets); err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
	}

	if end, err := f.Tell(); err == nil {
		_ = f.Truncate(end)
	}

	ff.blocks = blocks

	return nil
}

// Update serializes the current Tree and applies update.Engine's
// classify/plan/apply pipeline against the facade's own file in place,
// falling back to a full rewrite of that same file when no in-place layout
// is possible. Neither path goes through a temporary file, so a failure
// part-way through can leave the file partly rewritten. Update requires the facade to have been opened from
// a real path (Open, or WriteTo having been called at least once).
func (ff *FileFacade) Update() error {
	if ff.path == "" {
		return fmt.Errorf("%w: Update requires a facade opened from a path", ErrInvalidContextUsage)
	}

	ff.recordHistory("file updated")

	updateCtx := serialctx.NewWriteContext(ff.standardVersion, "", ff.reg, ff.blocks)
	updateCtx.SetArrayPolicy(ff.arrayPolicy())

	treeBytes, err := ff.codec.Encode(ff.Tree, updateCtx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	}

	var header bytes.Buffer

	if err := writeHeaderLines(&header, ff.version, ff.standardVersion); err != nil {
		return err
	}

	fullTree := append(header.Bytes(), treeBytes...)
	fullTree = append(fullTree, []byte("...\n")...)

	hasStreamed := false

	for _, b := range ff.blocks.Blocks() {
		if b.Storage == StorageStreamed {
			hasStreamed = true
		}
	}

	var writeTrailer func(offsets []int64) error
	if !hasStreamed {
		writeTrailer = func(offsets []int64) error {
			return block.WriteIndexTrailer(ff.f, offsets)
		}
	}

	var engine update.Engine

	return engine.Update(ff.f, fullTree, ff.blocks, writeTrailer, func() error {
		return ff.writeFull(ff.f)
	})
}

// header holds the parsed preamble lines of an ASDF file.
type header struct {
	version         string
	standardVersion string
	bodyStart       int64
}

func writeHeaderLines(w interface{ Write([]byte) (int, error) }, version, standardVersion string) error {
	if _, err := fmt.Fprintf(w, "#ASDF %s\n", version); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	if _, err := fmt.Fprintf(w, "#ASDF_STANDARD %s\n", standardVersion); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	if _, err := fmt.Fprint(w, "---\n"); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	return nil
}

// newlineRE matches a single trailing newline, used with fileio.File's
// ReadUntil to pull one header line at a time off the front of a file.
var newlineRE = regexp.MustCompile(`\n`)

// readHeaderLines reads the "#ASDF <v>" and "#ASDF_STANDARD <v>" lines from
// f, starting at offset 0, and returns the parsed versions plus the byte
// offset the YAML document body (including any %YAML/%TAG directives and
// the opening "---") starts at.
func readHeaderLines(f fileio.File) (header, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return header{}, fmt.Errorf("%w: %w", ErrIO, err)
	}

	versionLine, err := f.ReadUntil(newlineRE)
	if err != nil {
		return header{}, fmt.Errorf("%w: %w", ErrHeaderMalformed, err)
	}

	standardLine, err := f.ReadUntil(newlineRE)
	if err != nil {
		return header{}, fmt.Errorf("%w: %w", ErrHeaderMalformed, err)
	}

	version, ok := strings.CutPrefix(strings.TrimSuffix(string(versionLine), "\n"), "#ASDF ")
	if !ok {
		return header{}, fmt.Errorf("%w: missing #ASDF header line", ErrHeaderMalformed)
	}

	standard, ok := strings.CutPrefix(strings.TrimSuffix(string(standardLine), "\n"), "#ASDF_STANDARD ")
	if !ok {
		return header{}, fmt.Errorf("%w: missing #ASDF_STANDARD header line", ErrHeaderMalformed)
	}

	pos, err := f.Tell()
	if err != nil {
		return header{}, fmt.Errorf("%w: %w", ErrIO, err)
	}

	return header{
		version:         strings.TrimSpace(version),
		standardVersion: strings.TrimSpace(standard),
		bodyStart:       pos,
	}, nil
}

// treeBounds separates two distinct offsets that the YAML end-of-document
// marker conflates: docEnd is where the parseable tree content stops
// (including the single trailing newline that ends its last content line),
// and blocksStart is where block scanning should resume from. The marker
// "\n...\n" is 5 bytes -- its leading "\n" belongs to the document, but the
// "...\n" that follows does not, and must be skipped before looking for a
// block magic.
type treeBounds struct {
	docEnd      int64
	blocksStart int64
}

// findTreeBounds scans forward from bodyStart for the YAML end-of-document
// marker "\n...\n" (or the first block magic, for a tree that omits it) and
// returns the two offsets, leaving f's position unspecified.
func findTreeBounds(f fileio.File, bodyStart int64) (treeBounds, error) {
	total, err := f.Len()
	if err != nil {
		return treeBounds{}, fmt.Errorf("%w: %w", ErrIO, err)
	}

	if _, err := f.Seek(bodyStart, 0); err != nil {
		return treeBounds{}, fmt.Errorf("%w: %w", ErrIO, err)
	}

	rest := make([]byte, total-bodyStart)
	if _, err := readFullAt(f, rest); err != nil {
		return treeBounds{}, fmt.Errorf("%w: %w", ErrIO, err)
	}

	if idx := bytes.Index(rest, []byte("\n...\n")); idx >= 0 {
		docEnd := bodyStart + int64(idx) + 1
		return treeBounds{docEnd: docEnd, blocksStart: docEnd + 4}, nil
	}

	if idx := bytes.Index(rest, block.Magic[:]); idx >= 0 {
		at := bodyStart + int64(idx)
		return treeBounds{docEnd: at, blocksStart: at}, nil
	}

	return treeBounds{docEnd: total, blocksStart: total}, nil
}

func readFullAt(f fileio.File, buf []byte) (int, error) {
	read := 0

	for read < len(buf) {
		n, err := f.Read(buf[read:])
		read += n

		if err != nil {
			return read, err
		}

		if n == 0 {
			return read, fmt.Errorf("unexpected EOF after %d of %d bytes", read, len(buf))
		}
	}

	return read, nil
}
