package mcpwire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/tidwall/gjson"

	"github.com/thushan/mcpmux/internal/core/domain"
	"github.com/thushan/mcpmux/internal/core/ports"
)

var (
	ErrClosed      = errors.New("mcpwire: connection closed")
	ErrWriteFailed = errors.New("mcpwire: write failed")
)

// pending is one in-flight request awaiting its reply frame.
type pending struct {
	replyCh chan Reply
}

// Conn is a single long-lived TCP connection to a backend MCP server,
// implementing ports.MCPClient. One background goroutine reads frames and
// demultiplexes them onto the waiting caller by id; writes are serialised
// under a mutex because the wire is a single newline-delimited stream.
type Conn struct {
	nc       net.Conn
	reader   *bufio.Reader
	writeMu  sync.Mutex
	pending  *xsync.Map[string, *pending]
	nextID   atomic.Uint64
	closed   atomic.Bool
	closeCh  chan struct{}
	closeErr error
	closeOne sync.Once
}

// netDialer is the default ports.Dialer, grounded on the teacher's plain
// net.Dial health-client transport but framed for MCP instead of HTTP.
type netDialer struct{}

func NewDialer() ports.Dialer { return netDialer{} }

func (netDialer) Dial(ctx context.Context, host string, port int, timeout time.Duration) (ports.MCPClient, error) {
	d := net.Dialer{Timeout: timeout}
	nc, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		return nil, err
	}
	c := &Conn{
		nc:      nc,
		reader:  bufio.NewReaderSize(nc, 64*1024),
		pending: xsync.NewMap[string, *pending](),
		closeCh: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			c.fail(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		if len(line) == 0 {
			continue
		}
		// Peek the id field with gjson before paying for a full decode;
		// most frames are routed, not inspected further.
		id := gjson.GetBytes(line, "id").String()

		p, ok := c.pending.LoadAndDelete(id)
		if !ok {
			continue // stray/late reply, drop it
		}
		var reply Reply
		if err := json.Unmarshal(line, &reply); err != nil {
			p.replyCh <- Reply{ID: id, Error: &ReplyError{Message: err.Error()}}
			continue
		}
		p.replyCh <- reply
	}
}

func (c *Conn) fail(err error) {
	c.closeOne.Do(func() {
		c.closed.Store(true)
		c.closeErr = err
		close(c.closeCh)
	})
	c.pending.Range(func(id string, p *pending) bool {
		c.pending.Delete(id)
		p.replyCh <- Reply{ID: id, Error: &ReplyError{Message: err.Error()}}
		return true
	})
}

func (c *Conn) call(ctx context.Context, method string, params any) (Reply, error) {
	if c.closed.Load() {
		return Reply{}, ErrClosed
	}
	id := strconv.FormatUint(c.nextID.Add(1), 10)
	p := &pending{replyCh: make(chan Reply, 1)}
	c.pending.Store(id, p)

	frame, err := json.Marshal(Request{ID: id, Method: method, Params: params})
	if err != nil {
		c.pending.Delete(id)
		return Reply{}, err
	}
	frame = append(frame, '\n')

	c.writeMu.Lock()
	_, err = c.nc.Write(frame)
	c.writeMu.Unlock()
	if err != nil {
		c.pending.Delete(id)
		return Reply{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	select {
	case reply := <-p.replyCh:
		if reply.Error != nil {
			return reply, reply.Error
		}
		return reply, nil
	case <-ctx.Done():
		c.pending.Delete(id)
		return Reply{}, ctx.Err()
	case <-c.closeCh:
		return Reply{}, c.closeErr
	}
}

func (c *Conn) Ping(ctx context.Context) error {
	_, err := c.call(ctx, MethodPing, nil)
	return err
}

func (c *Conn) Metrics(ctx context.Context) (map[string]float64, error) {
	reply, err := c.call(ctx, MethodMetrics, nil)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(reply.Result)
	if err != nil {
		return nil, err
	}
	out := map[string]float64{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("mcpwire: malformed metrics result: %w", err)
	}
	return out, nil
}

// Query does not know its own server id — the pool manager is the one
// that knows which *domain.Server this Conn was dialed for, so ServerID
// is patched onto the metadata by the caller (pool.Manager.dispatch).
func (c *Conn) Query(ctx context.Context, req domain.RAGRequest) (domain.RAGResponse, error) {
	reply, err := c.call(ctx, MethodQuery, queryParams{
		Query:      req.Query,
		Context:    req.Context,
		MaxResults: req.MaxResults,
		Threshold:  req.Threshold,
	})
	if err != nil {
		return domain.RAGResponse{}, err
	}
	raw, err := json.Marshal(reply.Result)
	if err != nil {
		return domain.RAGResponse{}, err
	}
	var wire queryResponseWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return domain.RAGResponse{}, fmt.Errorf("mcpwire: malformed query result: %w", err)
	}

	results := make([]domain.RAGResult, len(wire.Results))
	for i, r := range wire.Results {
		results[i] = domain.RAGResult{Content: r.Content, Score: r.Score, Metadata: r.Metadata}
	}
	return domain.RAGResponse{
		Results: results,
		Metadata: domain.RAGResponseMetadata{
			Source:           wire.Source,
			QueryID:          wire.QueryID,
			TotalResults:     len(results),
			ProcessingTimeMs: wire.ProcessingTimeMs,
		},
	}, nil
}

func (c *Conn) Close() error {
	c.fail(ErrClosed)
	return c.nc.Close()
}
