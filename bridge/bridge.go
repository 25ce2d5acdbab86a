// Copyright © 2024 The pikelsp authors

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/piketools/pikelsp/analysis"
)

// Config configures a Bridge.
type Config struct {
	Process ProcessConfig

	// RequestTimeout bounds each subprocess round-trip. Defaults to 30s.
	RequestTimeout time.Duration
	// MaxRestarts bounds automatic restarts after unexpected exits.
	// Once exhausted the bridge stays unavailable until an explicit
	// Start. Defaults to 3.
	MaxRestarts int
	// Debug forwards the verbose-logging toggle to the compiler after
	// each successful start, including automatic restarts.
	Debug bool

	// Cache tier capacities; zero values take defaults.
	ProgramCacheSize  int
	ProgramCacheBytes int64 // summed estimated bytes; 0 disables the ceiling
	StdlibCacheSize   int
	DocumentCacheSize int
	StdlibCacheTTL    time.Duration // 0 = no expiry
}

func (c *Config) fillDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxRestarts == 0 {
		c.MaxRestarts = 3
	}
	if c.ProgramCacheSize == 0 {
		c.ProgramCacheSize = 128
	}
	if c.StdlibCacheSize == 0 {
		c.StdlibCacheSize = 256
	}
	if c.DocumentCacheSize == 0 {
		c.DocumentCacheSize = 128
	}
}

// Bridge is the facade over the compiler subprocess: every operation
// composes deduplication, the cache tiers, and the wire codec. A Bridge
// is explicitly constructed and owned by its caller; there is no
// package-level instance.
type Bridge struct {
	cfg    Config
	log    commonlog.Logger
	tracer trace.Tracer

	transport Transport
	codec     *Codec
	flight    singleflight.Group

	// Cache tiers survive subprocess restarts: they hold computed data,
	// not live process state.
	programs  *Cache[string, *Program]
	stdlib    *Cache[string, *StdlibModule]
	documents *Cache[string, *DocumentAnalysis]

	// startMu serializes generation turn-up (explicit Start, the
	// crash-restart goroutine) and Stop, so exactly one ReadLoop ever
	// runs per subprocess generation.
	startMu sync.Mutex

	mu          sync.Mutex
	started     bool
	unavailable bool
	restarts    int
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTransport substitutes the compiler transport. Used by tests to run
// against an in-memory fake compiler.
func WithTransport(t Transport) Option {
	return func(b *Bridge) { b.transport = t }
}

// WithLogger overrides the default scoped logger.
func WithLogger(log commonlog.Logger) Option {
	return func(b *Bridge) { b.log = log }
}

// WithTracerProvider routes round-trip spans to the given provider
// instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(b *Bridge) { b.tracer = tp.Tracer("pikelsp/bridge") }
}

// New creates a Bridge. The subprocess is not spawned until Start.
func New(cfg Config, opts ...Option) *Bridge {
	cfg.fillDefaults()
	b := &Bridge{
		cfg:    cfg,
		log:    commonlog.GetLogger("pikelsp.bridge"),
		tracer: otel.Tracer("pikelsp/bridge"),
		codec:  NewCodec(),
		programs: NewCache[string, *Program](CacheConfig[*Program]{
			MaxEntries: cfg.ProgramCacheSize,
			MaxCost:    cfg.ProgramCacheBytes,
			Cost:       func(p *Program) int64 { return p.SizeBytes },
		}),
		stdlib: NewCache[string, *StdlibModule](CacheConfig[*StdlibModule]{
			MaxEntries: cfg.StdlibCacheSize,
			TTL:        cfg.StdlibCacheTTL,
		}),
		documents: NewCache[string, *DocumentAnalysis](CacheConfig[*DocumentAnalysis]{
			MaxEntries: cfg.DocumentCacheSize,
		}),
	}
	for _, o := range opts {
		o(b)
	}
	if b.transport == nil {
		b.transport = NewProcess(cfg.Process)
	}
	b.transport.OnExit(b.handleExit)
	return b
}

// Start brings the subprocess up and begins reading responses.
// Idempotent. An explicit Start also resets the restart budget and
// clears the unavailable state.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.bringUp(ctx, false); err != nil {
		return err
	}
	b.mu.Lock()
	b.started = true
	b.unavailable = false
	b.restarts = 0
	b.mu.Unlock()
	return nil
}

// bringUp turns up one subprocess generation and wires exactly one
// ReadLoop to it. All turn-ups and Stop go through startMu; whichever
// caller starts the generation also attaches the codec, and a caller
// finding the transport already running attaches nothing. The restart
// path additionally stands down when Stop won the race during the
// backoff sleep.
func (b *Bridge) bringUp(ctx context.Context, restart bool) error {
	b.startMu.Lock()
	defer b.startMu.Unlock()

	if restart && !b.isStarted() {
		b.log.Debug("restart abandoned; the bridge was stopped")
		return nil
	}
	if b.transport.Running() {
		return nil
	}
	if err := b.transport.Start(ctx); err != nil {
		return err
	}
	b.codec.Attach(b.transport.Writer())
	go b.codec.ReadLoop(b.transport.Reader())

	if b.cfg.Debug {
		// Re-assert verbose logging on every generation; the setting
		// dies with the process.
		go func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := b.SetDebug(dctx, true); err != nil {
				b.log.Warningf("enabling compiler debug logging: %v", err)
			}
		}()
	}
	return nil
}

func (b *Bridge) isStarted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

// Stop shuts the subprocess down. Pending requests fail with
// ProcessError. Safe to call on a stopped bridge, and a crash-restart
// pending during its backoff sleep stands down rather than resurrect
// the subprocess. Caches are kept.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	b.started = false
	b.mu.Unlock()

	b.startMu.Lock()
	defer b.startMu.Unlock()
	b.codec.Detach()
	err := b.transport.Stop(ctx)
	b.codec.FailAll(&ProcessError{Op: "stop"})
	return err
}

// Running reports whether the subprocess is alive.
func (b *Bridge) Running() bool {
	return b.transport.Running()
}

// Unavailable reports whether the bridge has given up auto-restarting
// after repeated crashes. Cleared by an explicit Start.
func (b *Bridge) Unavailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unavailable
}

// CheckExecutable probes the compiler executable when the transport is
// a real process. Fake transports report a static version.
func (b *Bridge) CheckExecutable(ctx context.Context) (string, error) {
	if p, ok := b.transport.(*Process); ok {
		return p.CheckExecutable(ctx)
	}
	return "test", nil
}

// handleExit is the crash listener: fail everything mid-flight, then
// either restart (within budget) or latch the unavailable state. Caches
// are data, not process state, and survive.
func (b *Bridge) handleExit(err error) {
	b.codec.Detach()
	b.codec.FailAll(&ProcessError{Op: "exit", Err: err})

	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.restarts++
	exhausted := b.restarts > b.cfg.MaxRestarts
	if exhausted {
		b.unavailable = true
	}
	attempt := b.restarts
	b.mu.Unlock()

	if exhausted {
		b.log.Error("pike keeps crashing; giving up until an explicit restart")
		return
	}

	b.log.Noticef("restarting pike (attempt %d/%d)", attempt, b.cfg.MaxRestarts)
	go func() {
		time.Sleep(time.Duration(attempt) * 250 * time.Millisecond)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.bringUp(ctx, true); err != nil {
			b.log.Errorf("restart failed: %v", err)
			b.mu.Lock()
			b.unavailable = true
			b.mu.Unlock()
		}
	}()
}

// call is the single path to the subprocess: fingerprint, merge with any
// identical in-flight request, then one codec round-trip wrapped in a
// span. A caller whose ctx expires stops waiting without cancelling the
// shared underlying call.
func (b *Bridge) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	key, err := Fingerprint(method, params)
	if err != nil {
		return nil, err
	}

	ctx, span := b.tracer.Start(ctx, "pike.call",
		trace.WithAttributes(attribute.String("pike.method", method)))
	defer span.End()

	ch := b.flight.DoChan(key, func() (any, error) {
		// The shared call gets its own deadline, detached from any one
		// subscriber's context.
		cctx, cancel := context.WithTimeout(context.Background(), b.cfg.RequestTimeout)
		defer cancel()
		return b.codec.Call(cctx, method, params)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			span.SetStatus(codes.Error, res.Err.Error())
			span.RecordError(res.Err)
			return nil, res.Err
		}
		span.SetAttributes(attribute.Bool("pike.shared", res.Shared))
		return res.Val.(json.RawMessage), nil
	case <-ctx.Done():
		span.SetStatus(codes.Error, ctx.Err().Error())
		return nil, ctx.Err()
	}
}

// RawCall sends an arbitrary method with untyped params and returns the
// raw result. It goes through the same dedup and tracing path as the
// typed operations. Intended for the interactive console and debugging;
// feature code uses the typed wrappers.
func (b *Bridge) RawCall(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return b.call(ctx, method, params)
}

// Parse extracts symbols and diagnostics from code. Compile problems
// come back inside the result's diagnostics, never as an error.
func (b *Bridge) Parse(ctx context.Context, code, filename string) (*ParseResult, error) {
	raw, err := b.call(ctx, "parse", map[string]any{
		"code":     code,
		"filename": filename,
	})
	if err != nil {
		return nil, err
	}
	return decodeParseResult("parse", raw)
}

// Tokenize runs the compiler's tokenizer over code.
func (b *Bridge) Tokenize(ctx context.Context, code, filename string) ([]analysis.Token, error) {
	raw, err := b.call(ctx, "tokenize", map[string]any{
		"code":     code,
		"filename": filename,
	})
	if err != nil {
		return nil, err
	}
	var shape struct {
		Tokens json.RawMessage `json:"tokens"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, &ValidationError{Method: "tokenize", Field: "result", Reason: err.Error()}
	}
	var tokens []analysis.Token
	if err := decodeArray("tokenize", "tokens", shape.Tokens, true, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// Compile compiles code to a program handle, serving repeats of the
// same source from the program cache.
func (b *Bridge) Compile(ctx context.Context, code, filename string) (*Program, error) {
	params := map[string]any{"code": code, "filename": filename}
	key, err := Fingerprint("compile", params)
	if err != nil {
		return nil, err
	}
	if prog, ok := b.programs.Get(key); ok {
		return prog, nil
	}

	raw, err := b.call(ctx, "compile", params)
	if err != nil {
		return nil, err
	}
	var prog Program
	if err := json.Unmarshal(raw, &prog); err != nil {
		return nil, &ValidationError{Method: "compile", Field: "result", Reason: err.Error()}
	}
	if prog.SizeBytes == 0 {
		prog.SizeBytes = int64(len(code))
	}
	// An in-flight group for this fingerprint may have raced an eviction;
	// storing on resolution keeps the freshest value either way.
	b.programs.Put(key, &prog)
	return &prog, nil
}

// Analyze issues one round-trip performing several sub-analyses on the
// same source. Sub-operation failures are reported per-op in the result
// and never abort the call: mid-edit code with broken imports still gets
// its outline and diagnostics.
func (b *Bridge) Analyze(ctx context.Context, code string, ops []string, filename string) (*AnalyzeResult, error) {
	raw, err := b.call(ctx, "analyze", map[string]any{
		"code":     code,
		"include":  ops,
		"filename": filename,
	})
	if err != nil {
		return nil, err
	}
	return decodeAnalyzeResult(raw)
}

// BatchParse parses several files in one round-trip, amortizing the
// subprocess overhead. A per-file failure is recorded in that file's
// result; the batch always returns one result per input.
func (b *Bridge) BatchParse(ctx context.Context, files []FileSource) (*BatchResult, error) {
	raw, err := b.call(ctx, "batch_parse", map[string]any{"files": files})
	if err != nil {
		return nil, err
	}
	return decodeBatchResult(raw)
}

// ResolveModule resolves an import/include path relative to currentFile.
// Returns "" when the module cannot be resolved.
func (b *Bridge) ResolveModule(ctx context.Context, path, currentFile string) (string, error) {
	raw, err := b.call(ctx, "resolve", map[string]any{
		"path":    path,
		"current": currentFile,
	})
	if err != nil {
		return "", err
	}
	var shape struct {
		Resolved *string `json:"resolved"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return "", &ValidationError{Method: "resolve", Field: "result", Reason: err.Error()}
	}
	if shape.Resolved == nil {
		return "", nil
	}
	return *shape.Resolved, nil
}

// ResolveStdlib returns the symbol table of a stdlib module such as
// "Stdio". Hits, including negative ones, come from the stdlib cache.
func (b *Bridge) ResolveStdlib(ctx context.Context, module string) (*StdlibModule, error) {
	if mod, ok := b.stdlib.Get(module); ok {
		return mod, nil
	}
	raw, err := b.call(ctx, "resolve_stdlib", map[string]any{"module": module})
	if err != nil {
		return nil, err
	}
	mod, err := decodeStdlibModule(raw)
	if err != nil {
		return nil, err
	}
	b.stdlib.Put(module, mod)
	return mod, nil
}

// GetInherited returns the symbols a class inherits, resolved by the
// compiler.
func (b *Bridge) GetInherited(ctx context.Context, class, filename string) ([]analysis.Symbol, error) {
	raw, err := b.call(ctx, "get_inherited", map[string]any{
		"class":    class,
		"filename": filename,
	})
	if err != nil {
		return nil, err
	}
	var shape struct {
		Symbols json.RawMessage `json:"symbols"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, &ValidationError{Method: "get_inherited", Field: "result", Reason: err.Error()}
	}
	var syms []analysis.Symbol
	if err := decodeArray("get_inherited", "symbols", shape.Symbols, true, &syms); err != nil {
		return nil, err
	}
	return syms, nil
}

// AnalyzeDocument returns the cached analysis for a document, or runs a
// unified analyze (parse, diagnostics, references, dependencies) and
// caches it. The cache key is the URI; staleness is detected by content
// fingerprint, so an unchanged document never costs a round-trip while
// any edit forces one.
func (b *Bridge) AnalyzeDocument(ctx context.Context, uri string, version int32, code string) (*DocumentAnalysis, error) {
	fp, err := Fingerprint("document", map[string]any{"code": code})
	if err != nil {
		return nil, err
	}
	if doc, ok := b.documents.Get(uri); ok && doc.Fingerprint == fp {
		return doc, nil
	}

	res, err := b.Analyze(ctx, code, []string{OpParse, OpDiagnostics, OpReferences, OpDependencies}, uri)
	if err != nil {
		return nil, err
	}

	symbols, err := res.Symbols()
	if err != nil {
		return nil, err
	}
	diags, err := res.Diagnostics()
	if err != nil {
		return nil, err
	}
	refs, err := res.References()
	if err != nil {
		return nil, err
	}
	deps, err := res.Dependencies()
	if err != nil {
		return nil, err
	}

	idx := analysis.NewIndex(symbols)
	idx.Merge(refs)
	doc := &DocumentAnalysis{
		URI:          uri,
		Fingerprint:  fp,
		Version:      version,
		Symbols:      symbols,
		Diagnostics:  diags,
		Index:        idx,
		Dependencies: deps,
	}
	b.documents.Put(uri, doc)
	return doc, nil
}

// CachedDocument returns the document-cache entry for uri without
// touching the subprocess. Serves degraded operation while the backend
// is down.
func (b *Bridge) CachedDocument(uri string) (*DocumentAnalysis, bool) {
	return b.documents.Get(uri)
}

// InvalidateDocument drops the cached analysis for uri.
func (b *Bridge) InvalidateDocument(uri string) {
	b.documents.Invalidate(uri)
}

// ClearCaches empties all three tiers.
func (b *Bridge) ClearCaches() {
	b.programs.Clear()
	b.stdlib.Clear()
	b.documents.Clear()
}

// CacheStats snapshots the host-side cache tiers.
func (b *Bridge) CacheStats() TieredStats {
	return TieredStats{
		Program:  b.programs.GetStats(),
		Stdlib:   b.stdlib.GetStats(),
		Document: b.documents.GetStats(),
	}
}

// Version reports the compiler's version string.
func (b *Bridge) Version(ctx context.Context) (string, error) {
	raw, err := b.call(ctx, "get_version", map[string]any{})
	if err != nil {
		return "", err
	}
	var shape struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return "", &ValidationError{Method: "get_version", Field: "result", Reason: err.Error()}
	}
	return shape.Version, nil
}

// SetDebug toggles verbose logging on the compiler side.
func (b *Bridge) SetDebug(ctx context.Context, enabled bool) error {
	_, err := b.call(ctx, "set_debug", map[string]any{"enabled": enabled})
	return err
}

// CompilerCacheStats fetches the compiler-side cache counters.
func (b *Bridge) CompilerCacheStats(ctx context.Context) (json.RawMessage, error) {
	return b.call(ctx, "get_cache_stats", map[string]any{})
}

// InvalidateCompilerCache clears the compiler-side caches.
func (b *Bridge) InvalidateCompilerCache(ctx context.Context) error {
	_, err := b.call(ctx, "invalidate_cache", map[string]any{})
	return err
}

// IsTransportError reports whether err is a transport-level failure
// (process death, timeout, protocol corruption) as opposed to a data
// error. Feature handlers degrade to "unavailable" on these.
func IsTransportError(err error) bool {
	var pe *ProcessError
	var te *TimeoutError
	var pre *ProtocolError
	return errors.As(err, &pe) || errors.As(err, &te) || errors.As(err, &pre)
}
