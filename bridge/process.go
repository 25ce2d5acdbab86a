// Copyright © 2024 The pikelsp authors

// Package bridge connects the language server to the Pike compiler,
// which runs as a long-lived subprocess speaking newline-delimited JSON
// over stdin/stdout. The bridge owns process lifecycle, request
// correlation, in-flight deduplication, and a three-tier LRU cache over
// an inherently slow, single-threaded backend.
package bridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/tliron/commonlog"
)

// Transport is the byte-stream connection to a compiler backend. Process
// is the production implementation; tests substitute an in-memory fake.
type Transport interface {
	// Start brings the backend up. Calling Start on a running transport
	// is a no-op.
	Start(ctx context.Context) error
	// Stop shuts the backend down. Safe to call on a stopped transport.
	Stop(ctx context.Context) error
	Running() bool
	// Writer is the request stream. Valid between Start and Stop.
	Writer() io.Writer
	// Reader is the response stream for the current generation.
	Reader() io.Reader
	// OnExit registers a callback invoked when the backend terminates
	// without Stop having been called.
	OnExit(fn func(err error))
}

// ProcessConfig describes how to spawn the compiler subprocess.
type ProcessConfig struct {
	// Command is the Pike executable. Defaults to "pike".
	Command string
	// MasterScript is the analyze-server entry script run by Command.
	MasterScript string
	// ModulePaths are passed as -M flags, IncludePaths as -I flags.
	ModulePaths  []string
	IncludePaths []string
	// Args are appended verbatim after MasterScript.
	Args []string
	// StopTimeout bounds the wait for a graceful exit before the process
	// is killed. Defaults to 3s.
	StopTimeout time.Duration
}

// Process owns the compiler subprocess and its I/O streams.
type Process struct {
	cfg ProcessConfig
	log commonlog.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   io.ReadCloser
	exited   chan struct{}
	alive    bool
	stopping bool
	restarts int
	onExit   func(error)
}

// NewProcess creates a process manager. The subprocess is not spawned
// until Start.
func NewProcess(cfg ProcessConfig) *Process {
	if cfg.Command == "" {
		cfg.Command = "pike"
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 3 * time.Second
	}
	return &Process{
		cfg: cfg,
		log: commonlog.GetLogger("pikelsp.process"),
	}
}

// OnExit registers the crash listener. Must be called before Start.
func (p *Process) OnExit(fn func(error)) {
	p.mu.Lock()
	p.onExit = fn
	p.mu.Unlock()
}

func (p *Process) argv() []string {
	var args []string
	for _, m := range p.cfg.ModulePaths {
		args = append(args, "-M"+m)
	}
	for _, inc := range p.cfg.IncludePaths {
		args = append(args, "-I"+inc)
	}
	if p.cfg.MasterScript != "" {
		args = append(args, p.cfg.MasterScript)
	}
	return append(args, p.cfg.Args...)
}

// Start spawns the subprocess and wires its streams. Idempotent: if the
// process is already running, Start returns immediately.
func (p *Process) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.alive {
		return nil
	}

	cmd := exec.Command(p.cfg.Command, p.argv()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &ProcessError{Op: "spawn", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ProcessError{Op: "spawn", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &ProcessError{Op: "spawn", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &ProcessError{Op: "spawn", Err: err}
	}

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = stdout
	p.exited = make(chan struct{})
	p.alive = true
	p.stopping = false
	p.log.Infof("pike started (pid %d)", cmd.Process.Pid)

	// Stderr is a diagnostic sink only; it must never block the protocol.
	go p.relayStderr(stderr)
	go p.wait(cmd, p.exited)
	return nil
}

// relayStderr copies subprocess stderr lines into the log.
func (p *Process) relayStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.log.Infof("pike: %s", scanner.Text())
	}
}

// wait blocks on process exit and fires the crash listener when the exit
// was not requested by Stop.
func (p *Process) wait(cmd *exec.Cmd, exited chan struct{}) {
	err := cmd.Wait()
	defer close(exited)

	p.mu.Lock()
	if p.cmd != cmd {
		// A newer generation replaced this one.
		p.mu.Unlock()
		return
	}
	p.alive = false
	wasStopping := p.stopping
	fn := p.onExit
	if !wasStopping {
		p.restarts++
	}
	p.mu.Unlock()

	if wasStopping {
		p.log.Info("pike exited")
		return
	}
	p.log.Errorf("pike exited unexpectedly: %v", err)
	if fn != nil {
		fn(err)
	}
}

// Stop closes stdin so the subprocess sees EOF and exits, then kills it
// if it does not go down within StopTimeout. Always safe to call.
func (p *Process) Stop(_ context.Context) error {
	p.mu.Lock()
	if !p.alive {
		p.mu.Unlock()
		return nil
	}
	p.stopping = true
	cmd := p.cmd
	stdin := p.stdin
	exited := p.exited
	p.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}

	select {
	case <-exited:
	case <-time.After(p.cfg.StopTimeout):
		p.log.Warning("pike did not exit; killing")
		_ = cmd.Process.Kill()
		<-exited
	}
	return nil
}

// Running reports whether the subprocess is alive.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

// Restarts returns the number of unexpected exits observed so far.
func (p *Process) Restarts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restarts
}

// Pid returns the subprocess pid, or 0 when not running.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.alive || p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Writer returns the request stream.
func (p *Process) Writer() io.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stdin
}

// Reader returns the response stream for the current generation.
func (p *Process) Reader() io.Reader {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stdout
}

// CheckExecutable probes the configured executable with --version so a
// missing or broken Pike installation produces an actionable message
// before Start is ever attempted. Returns the reported version line.
func (p *Process) CheckExecutable(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, p.cfg.Command, "--version").CombinedOutput()
	if err != nil {
		return "", &ProcessError{
			Op:  "probe",
			Err: fmt.Errorf("%q is not runnable (install Pike or set the executable path): %w", p.cfg.Command, err),
		}
	}
	version := strings.TrimSpace(string(out))
	if i := strings.IndexByte(version, '\n'); i >= 0 {
		version = version[:i]
	}
	return version, nil
}
