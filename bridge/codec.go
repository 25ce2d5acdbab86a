// Copyright © 2024 The pikelsp authors

package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/tliron/commonlog"
)

// maxLine bounds a single response line. Compiled symbol tables for large
// files run well under this.
const maxLine = 16 * 1024 * 1024

// request is one wire request: {"id": n, "method": "...", "params": {...}}.
type request struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// response is one wire response line. Exactly one of Result or Error is
// set by a well-behaved compiler.
type response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type outcome struct {
	result json.RawMessage
	err    error
}

// pendingRequest tracks one in-flight call until its response line is
// correlated, it times out, or the subprocess dies.
type pendingRequest struct {
	id      int64
	method  string
	created time.Time
	ch      chan outcome // buffered, capacity 1
}

// Codec frames requests onto a write stream and correlates response
// lines back to pending calls by id. IDs start at 1 and increment for
// the lifetime of one subprocess generation; Attach resets them.
type Codec struct {
	log commonlog.Logger

	mu      sync.Mutex
	w       io.Writer
	nextID  int64
	pending map[int64]*pendingRequest
}

// NewCodec creates a codec with no attached stream. Calls fail with
// ProcessError until Attach.
func NewCodec() *Codec {
	return &Codec{
		log:     commonlog.GetLogger("pikelsp.codec"),
		pending: make(map[int64]*pendingRequest),
	}
}

// Attach binds the codec to a new subprocess generation's request
// stream and resets id allocation. Any requests still pending from a
// previous generation must have been failed via FailAll first.
func (c *Codec) Attach(w io.Writer) {
	c.mu.Lock()
	c.w = w
	c.nextID = 0
	c.mu.Unlock()
}

// Detach drops the write stream; subsequent calls fail fast.
func (c *Codec) Detach() {
	c.mu.Lock()
	c.w = nil
	c.mu.Unlock()
}

// Pending returns the number of in-flight requests.
func (c *Codec) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Call sends method+params and blocks until the correlated response
// arrives, ctx expires, or the subprocess dies. A deadline expiry
// returns TimeoutError; the subprocess call is not retried and its
// eventual orphaned response is discarded.
func (c *Codec) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.w == nil {
		c.mu.Unlock()
		return nil, &ProcessError{Op: "write", Err: io.ErrClosedPipe}
	}
	c.nextID++
	pr := &pendingRequest{
		id:      c.nextID,
		method:  method,
		created: time.Now(),
		ch:      make(chan outcome, 1),
	}
	c.pending[pr.id] = pr

	line, err := json.Marshal(request{ID: pr.id, Method: method, Params: params})
	if err != nil {
		delete(c.pending, pr.id)
		c.mu.Unlock()
		return nil, err
	}
	// Write under the lock: request lines must never interleave.
	_, err = c.w.Write(append(line, '\n'))
	if err != nil {
		delete(c.pending, pr.id)
		c.mu.Unlock()
		return nil, &ProcessError{Op: "write", Err: err}
	}
	c.mu.Unlock()

	select {
	case out := <-pr.ch:
		return out.result, out.err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, pr.id)
		c.mu.Unlock()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutError{Method: method, Elapsed: time.Since(pr.created)}
		}
		return nil, ctx.Err()
	}
}

// ReadLoop consumes response lines from r until EOF or a read error,
// dispatching each to its pending request. It is run once per subprocess
// generation, on its own goroutine.
func (c *Codec) ReadLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		c.dispatch(line)
	}
	if err := scanner.Err(); err != nil {
		c.log.Debugf("read loop ended: %v", err)
	}
}

// dispatch correlates one response line. Malformed JSON with a
// recoverable id fails that request; with no id the line is logged and
// dropped. Either way the stream stays synchronized: correlation is by
// id, never by arrival order.
func (c *Codec) dispatch(line []byte) {
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		// Try to salvage an id so the right caller sees the failure.
		var partial struct {
			ID int64 `json:"id"`
		}
		if json.Unmarshal(line, &partial) == nil && partial.ID > 0 {
			c.fail(partial.ID, &ProtocolError{Line: string(line), Err: err})
			return
		}
		c.log.Errorf("dropping unparseable line: %v", err)
		return
	}

	c.mu.Lock()
	pr, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()
	if !ok {
		// Orphaned response: the caller stopped waiting (soft cancel) or
		// the id is from a previous generation.
		c.log.Debugf("discarding orphaned response id=%d", resp.ID)
		return
	}

	if resp.Error != nil {
		pr.ch <- outcome{err: resp.Error}
		return
	}
	pr.ch <- outcome{result: resp.Result}
}

// fail rejects a single pending request.
func (c *Codec) fail(id int64, err error) {
	c.mu.Lock()
	pr, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok {
		pr.ch <- outcome{err: err}
	}
}

// FailAll rejects every pending request with err and clears the table.
// Called when the subprocess dies.
func (c *Codec) FailAll(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int64]*pendingRequest)
	c.mu.Unlock()
	for _, pr := range pending {
		pr.ch <- outcome{err: err}
	}
}
