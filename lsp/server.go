// Copyright © 2024 The pikelsp authors

// Package lsp implements a Language Server Protocol server for Pike.
// Feature handlers are thin consumers of the bridge: all parsing and
// introspection happens in the Pike compiler subprocess, and the
// handlers shape its cached results into protocol types.
package lsp

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	glspserver "github.com/tliron/glsp/server"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/piketools/pikelsp/bridge"
)

const serverName = "pikelsp"

// debounceDelay defers re-analysis while the user is typing.
const debounceDelay = 300 * time.Millisecond

// Analyzer is the slice of the bridge the server consumes. *bridge.Bridge
// implements it; tests substitute a stub.
type Analyzer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Running() bool
	Unavailable() bool
	AnalyzeDocument(ctx context.Context, uri string, version int32, code string) (*bridge.DocumentAnalysis, error)
	CachedDocument(uri string) (*bridge.DocumentAnalysis, bool)
	InvalidateDocument(uri string)
	ResolveStdlib(ctx context.Context, module string) (*bridge.StdlibModule, error)
	CacheStats() bridge.TieredStats
}

// Server is the Pike language server.
type Server struct {
	handler protocol.Handler
	glspSrv *glspserver.Server
	log     commonlog.Logger
	docs    *DocumentStore
	backend Analyzer

	rootURI  string
	rootPath string

	// Debouncer for didChange notifications.
	debounceMu sync.Mutex
	debounce   map[string]*time.Timer

	// Context for sending notifications (captured from latest request).
	notifyMu sync.Mutex
	notify   glsp.NotifyFunc

	// crashNotified keeps the "backend unavailable" message to one per
	// outage.
	crashNotified sync.Once

	// exitFn is called on the LSP exit notification. Defaults to os.Exit.
	// Overridable for testing.
	exitFn func(int)
}

// Option configures the LSP server.
type Option func(*Server)

// WithAnalyzer injects the bridge (or a test stub).
func WithAnalyzer(a Analyzer) Option {
	return func(s *Server) { s.backend = a }
}

// New creates a new Pike LSP server backed by the given bridge.
func New(opts ...Option) *Server {
	s := &Server{
		log:      commonlog.GetLogger("pikelsp.server"),
		docs:     NewDocumentStore(),
		debounce: make(map[string]*time.Timer),
		exitFn:   os.Exit,
	}
	for _, o := range opts {
		o(s)
	}
	if s.backend == nil {
		s.backend = bridge.New(bridge.Config{})
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		Exit:        s.exit,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidSave:   s.textDocumentDidSave,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentHover:          s.textDocumentHover,
		TextDocumentDefinition:     s.textDocumentDefinition,
		TextDocumentCompletion:     s.textDocumentCompletion,
		TextDocumentReferences:     s.textDocumentReferences,
		TextDocumentDocumentSymbol: s.textDocumentDocumentSymbol,
	}

	s.glspSrv = glspserver.NewServer(&s.handler, serverName, false)
	return s
}

// RunStdio starts the server using stdio transport.
func (s *Server) RunStdio() error {
	return s.glspSrv.RunStdio()
}

// RunTCP starts the server listening on the given address.
func (s *Server) RunTCP(addr string) error {
	return s.glspSrv.RunTCP(addr)
}

// initialize handles the LSP initialize request.
func (s *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	s.captureNotify(ctx)

	if params.RootURI != nil {
		s.rootURI = *params.RootURI
		s.rootPath = uriToPath(s.rootURI)
	} else if params.RootPath != nil {
		s.rootPath = *params.RootPath
		s.rootURI = pathToURI(s.rootPath)
	}

	capabilities := s.handler.CreateServerCapabilities()

	// Override text document sync to full.
	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
		Save:      &protocol.SaveOptions{IncludeText: boolPtr(false)},
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{".", ">"},
	}

	version := "0.1.0"
	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    serverName,
			Version: &version,
		},
	}, nil
}

// initialized brings the compiler backend up once the client is ready.
// A spawn failure is surfaced as a message, not a server crash: the
// session continues in degraded mode.
func (s *Server) initialized(ctx *glsp.Context, _ *protocol.InitializedParams) error {
	s.captureNotify(ctx)
	go func() {
		startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.backend.Start(startCtx); err != nil {
			s.log.Errorf("pike backend failed to start: %v", err)
			s.showMessage(protocol.MessageTypeError,
				"Pike compiler backend failed to start; live analysis is unavailable. "+err.Error())
		}
	}()
	return nil
}

// shutdown handles the LSP shutdown request.
func (s *Server) shutdown(_ *glsp.Context) error {
	s.debounceMu.Lock()
	for _, t := range s.debounce {
		t.Stop()
	}
	s.debounce = make(map[string]*time.Timer)
	s.debounceMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.backend.Stop(ctx)
}

// exit handles the LSP exit notification by terminating the process.
func (s *Server) exit(_ *glsp.Context) error {
	s.exitFn(0)
	return nil
}

// setTrace handles the $/setTrace notification (required by some clients).
func (s *Server) setTrace(_ *glsp.Context, _ *protocol.SetTraceParams) error {
	return nil
}

// ensureAnalysis makes sure doc carries a current bridge analysis,
// falling back to the last cached result when the backend is down.
func (s *Server) ensureAnalysis(doc *Document) *bridge.DocumentAnalysis {
	doc.mu.Lock()
	uri, version, content := doc.URI, doc.Version, doc.Content
	current := doc.analysis
	doc.mu.Unlock()
	if current != nil {
		return current
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := s.backend.AnalyzeDocument(ctx, uri, version, content)
	if err != nil {
		if bridge.IsTransportError(err) {
			s.notifyBackendDown(err)
			// Degraded operation: serve the last known analysis if any.
			if cached, ok := s.backend.CachedDocument(uri); ok {
				return cached
			}
		} else {
			s.log.Errorf("analyze %s: %v", uri, err)
		}
		return nil
	}

	doc.mu.Lock()
	doc.analysis = res
	doc.mu.Unlock()
	return res
}

// notifyBackendDown tells the user once that live analysis is gone.
func (s *Server) notifyBackendDown(err error) {
	s.crashNotified.Do(func() {
		s.log.Errorf("pike backend unavailable: %v", err)
		s.showMessage(protocol.MessageTypeWarning,
			"The Pike compiler backend stopped; showing cached results until it recovers.")
	})
}

// captureNotify stores the notification function from the context for
// async use (e.g., publishing diagnostics after a debounce).
func (s *Server) captureNotify(ctx *glsp.Context) {
	s.notifyMu.Lock()
	s.notify = ctx.Notify
	s.notifyMu.Unlock()
}

// sendNotification sends a notification to the client.
func (s *Server) sendNotification(method string, params any) {
	s.notifyMu.Lock()
	fn := s.notify
	s.notifyMu.Unlock()
	if fn != nil {
		fn(method, params)
	}
}

func (s *Server) showMessage(kind protocol.MessageType, message string) {
	s.sendNotification(protocol.ServerWindowShowMessage, &protocol.ShowMessageParams{
		Type:    kind,
		Message: message,
	})
}

func boolPtr(b bool) *bool {
	return &b
}
