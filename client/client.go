package client

import (
	"context"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/gnunet-go/scheduler/fdset"
	"github.com/gnunet-go/scheduler/internal/obslog"
	"github.com/gnunet-go/scheduler/scheduler"
)

// Conn is the transport contract a Dialer must satisfy: a net.Conn whose
// underlying descriptor fdset.FD can extract. *net.TCPConn and *net.UnixConn
// both satisfy it unmodified.
type Conn interface {
	net.Conn
	syscall.Conn
}

// Dialer opens one connection attempt to the named service. The concrete
// transport is irrelevant to the queue (spec.md §4.3): swap in TCP, Unix
// domain sockets, or a test double without touching Connection.
type Dialer func(ctx context.Context, serviceName string) (Conn, error)

// FrameHandler processes one decoded inbound frame.
type FrameHandler func(Frame)

// Connection is a single client connection's queue: the outbound ticket
// queue, the inbound tokenizer, and the reconnect-with-backoff policy,
// layered over scheduler tasks per spec.md §4.3. It is the "handle" that
// connect/transmit/disconnect operate on.
type Connection struct {
	sched       *scheduler.Scheduler
	serviceName string
	dial        Dialer
	logger      *obslog.Logger
	maxFrame    int
	recvBuf     int
	backoff     *backoff.ExponentialBackOff

	conn      Conn
	fd        int
	connected bool
	closing   bool
	closed    bool

	tok *Tokenizer
	out outboundQueue

	handlers map[uint16]FrameHandler
	oneShot  FrameHandler

	readTaskID  scheduler.TaskID
	writeTaskID scheduler.TaskID
	writeArmed  bool

	timeoutTasks map[*ticket]scheduler.TaskID
}

// Connect opens a transport to serviceName and wires it into sched. It
// mirrors spec.md §4.3's connect(service_name, config) -> handle.
func Connect(sched *scheduler.Scheduler, serviceName string, dial Dialer, opts ...Option) (*Connection, error) {
	o := resolveOptions(opts)
	c := &Connection{
		sched:        sched,
		serviceName:  serviceName,
		dial:         dial,
		logger:       o.logger,
		maxFrame:     o.maxFrameSize,
		recvBuf:      o.receiveBufferSize,
		backoff:      newRedialBackoff(o.initialBackoff, o.maxBackoff),
		handlers:     make(map[uint16]FrameHandler),
		timeoutTasks: make(map[*ticket]scheduler.TaskID),
	}
	c.tok = NewTokenizer(c.dispatchFrame, c.maxFrame)

	conn, err := dial(context.Background(), serviceName)
	if err != nil {
		return nil, err
	}
	if err := c.attach(conn); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connection) attach(conn Conn) error {
	fd, err := fdset.FD(conn)
	if err != nil {
		conn.Close()
		return err
	}
	c.conn = conn
	c.fd = fd
	c.connected = true
	c.tok.Reset()
	c.backoff.Reset()
	c.armRead()
	c.armWriteIfNeeded()
	return nil
}

// RegisterHandler dispatches every inbound frame of frameType to h, per
// spec.md §6's "frames are dispatched to handlers by type".
func (c *Connection) RegisterHandler(frameType uint16, h FrameHandler) {
	c.handlers[frameType] = h
}

func (c *Connection) dispatchFrame(f Frame) {
	if c.oneShot != nil {
		h := c.oneShot
		c.oneShot = nil
		h(f)
		return
	}
	if h, ok := c.handlers[f.Type]; ok {
		h(f)
	}
}

// Transmit reserves a slot per spec.md §4.3: when the link becomes
// writable, assembler is invoked to copy a payload of up to size bytes;
// returning 0 aborts the ticket with StatusCancelled. The assembled bytes
// are not kept: if the write fails and a reconnect-safe ticket stays queued,
// assembler is invoked again when the fresh transport becomes writable.
// reconnectSafe controls whether the ticket survives a transport drop
// (spec.md: "pending transmit tickets survive a reconnect unless the
// caller opted out at enqueue time").
func (c *Connection) Transmit(size int, timeout time.Duration, urgent, reconnectSafe bool, assembler AssemblerFunc, completion CompletionFunc) {
	t := &ticket{
		size:          size,
		urgent:        urgent,
		reconnectSafe: reconnectSafe,
		assembler:     assembler,
		completion:    completion,
	}
	c.out.push(t)
	if timeout > 0 {
		c.timeoutTasks[t] = c.sched.AddDelayed(timeout, scheduler.PriorityDefault, scheduler.NoTask, true, func(*scheduler.TaskContext) {
			if t.completed {
				return
			}
			if c.out.remove(t) {
				c.finishTicket(t, StatusTimeout)
				if c.closing && c.out.empty() {
					c.teardown()
				}
			}
		})
	}
	c.armWriteIfNeeded()
}

// finishTicket completes t and, if Transmit armed a deadline task for it,
// cancels that task (unless status is StatusTimeout, meaning this call is
// itself that task's own callback — cancelling a task from within its own
// dispatch is a programming error per Scheduler.Cancel's contract).
func (c *Connection) finishTicket(t *ticket, status Status) {
	if id, ok := c.timeoutTasks[t]; ok {
		delete(c.timeoutTasks, t)
		if status != StatusTimeout {
			c.sched.Cancel(id)
		}
	}
	t.complete(status)
}

// TransmitAndGetResponse is spec.md §4.3's combined primitive: it queues a
// frame built from frameType/payload, then arms a single-shot handler that
// dispatches the first well-formed reply, whatever its own type.
func (c *Connection) TransmitAndGetResponse(frameType uint16, payload []byte, timeout time.Duration, autoReconnect bool, handler FrameHandler) {
	frame := EncodeFrame(frameType, payload)
	c.oneShot = handler
	c.Transmit(len(frame), timeout, false, autoReconnect, func(buf []byte) int {
		return copy(buf, frame)
	}, nil)
}

func (c *Connection) armRead() {
	if !c.connected || c.closed {
		return
	}
	c.readTaskID = c.sched.AddReadNet(c.fd, scheduler.Forever, scheduler.PriorityDefault, scheduler.NoTask, true, c.onReadable)
}

func (c *Connection) onReadable(ctx *scheduler.TaskContext) {
	buf := make([]byte, c.recvBuf)
	n, err := c.conn.Read(buf)
	if err != nil {
		c.handleTransportError(err)
		return
	}
	if n == 0 {
		c.handleTransportError(io.EOF)
		return
	}
	if err := c.tok.Feed(buf[:n]); err != nil {
		c.handleTransportError(err)
		return
	}
	c.armRead()
}

func (c *Connection) armWriteIfNeeded() {
	if !c.connected || c.closed || c.writeArmed || c.out.empty() {
		return
	}
	c.writeArmed = true
	c.writeTaskID = c.sched.AddWriteNet(c.fd, scheduler.Forever, scheduler.PriorityDefault, scheduler.NoTask, true, c.onWritable)
}

func (c *Connection) onWritable(ctx *scheduler.TaskContext) {
	c.writeArmed = false
	t := c.out.peek()
	if t == nil {
		if c.closing {
			c.teardown()
		}
		return
	}
	buf := make([]byte, t.size)
	n := t.assembler(buf)
	if n == 0 {
		c.out.popFront()
		c.finishTicket(t, StatusCancelled)
		if c.closing && c.out.empty() {
			c.teardown()
			return
		}
		c.armWriteIfNeeded()
		return
	}
	if _, err := c.conn.Write(buf[:n]); err != nil {
		c.handleTransportError(err)
		return
	}
	c.out.popFront()
	c.finishTicket(t, StatusOK)
	if c.closing && c.out.empty() {
		c.teardown()
		return
	}
	c.armWriteIfNeeded()
}

// handleTransportError implements spec.md §4.3's reconnect policy: the
// connection enters a re-dial state, reconnect-safe tickets stay queued,
// everything else is cancelled immediately.
func (c *Connection) handleTransportError(err error) {
	if c.closed {
		return
	}
	c.logger.Warning().Err(err).Log("client transport error; entering reconnect")
	c.conn.Close()
	c.connected = false
	c.out.failNonSurvivors(c.finishTicket)
	c.scheduleRedial()
}

func (c *Connection) scheduleRedial() {
	delay := c.backoff.NextBackOff()
	c.sched.AddDelayed(delay, scheduler.PriorityDefault, scheduler.NoTask, true, c.onRedial)
}

func (c *Connection) onRedial(ctx *scheduler.TaskContext) {
	if c.closed {
		return
	}
	conn, err := c.dial(context.Background(), c.serviceName)
	if err != nil {
		c.logger.Warning().Err(err).Log("redial attempt failed")
		c.scheduleRedial()
		return
	}
	if err := c.attach(conn); err != nil {
		c.logger.Warning().Err(err).Log("redial attach failed")
		c.scheduleRedial()
		return
	}
	c.logger.Info().Log("client reconnected")
}

// Close disconnects, per spec.md §4.3. With drain=true, queued tickets are
// allowed to finish writing before the transport closes; with drain=false
// every queued ticket completes immediately with StatusCancelled.
func (c *Connection) Close(drain bool) {
	if c.closed {
		return
	}
	if drain && !c.out.empty() && c.connected {
		c.closing = true
		c.armWriteIfNeeded()
		return
	}
	c.out.failAll(c.finishTicket, StatusCancelled)
	c.teardown()
}

func (c *Connection) teardown() {
	c.closed = true
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
	}
}
