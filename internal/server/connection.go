package server

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcoot/skirmish/internal/dependencies/clock"
	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/protocol"
	"github.com/mcoot/skirmish/internal/securechannel"
)

// outbound is one queued write. Messages are encrypted by the writer so the
// channel's nonce order matches the byte order on the wire; raw frames were
// already sealed during the handshake.
type outbound struct {
	msg        protocol.Message
	raw        []byte
	closeAfter bool
}

// Connection is one client TCP connection. Reads happen on the goroutine that
// owns the connection; all writes go through a single writer goroutine.
type Connection struct {
	id       uint64
	netConn  net.Conn
	reader   *bufio.Reader
	channel  securechannel.Channel
	clock    clock.Clock
	version  uint16
	writeTTL time.Duration
	logger   *slog.Logger

	state    atomic.Int32
	account  atomic.Int64
	lastSeen atomic.Int64

	out       chan outbound
	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(id uint64, netConn net.Conn, channel securechannel.Channel, clk clock.Clock, cfg Config, logger *slog.Logger) *Connection {
	c := &Connection{
		id:       id,
		netConn:  netConn,
		reader:   bufio.NewReader(netConn),
		channel:  channel,
		clock:    clk,
		version:  cfg.FrameVersion,
		writeTTL: cfg.WriteTimeout,
		logger: logger.With(
			slog.Uint64("conn_id", id),
			slog.String("remote", netConn.RemoteAddr().String())),
		out:  make(chan outbound, cfg.OutboundBuffer),
		done: make(chan struct{}),
	}
	c.touch()
	return c
}

func (c *Connection) ID() uint64 { return c.id }

// AccountID is the logged in account, false until login succeeds
func (c *Connection) AccountID() (model.AccountID, bool) {
	id := c.account.Load()
	return model.AccountID(id), id != 0
}

func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Connection) State() HandshakeState {
	return HandshakeState(c.state.Load())
}

func (c *Connection) setState(s HandshakeState) {
	c.state.Store(int32(s))
}

func (c *Connection) touch() {
	c.lastSeen.Store(c.clock.Now().UnixNano())
}

func (c *Connection) IsOpen() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Close closes the socket. Safe to call more than once and from any goroutine.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.netConn.Close()
	})
	return err
}

// Send queues msg for encryption and delivery. It never blocks: a client that
// cannot keep up is disconnected.
func (c *Connection) Send(msg protocol.Message) error {
	if c.State() != SecureChannelActive {
		return securechannel.ErrNotEstablished
	}
	return c.enqueue(outbound{msg: msg})
}

// sendRaw queues an already framed handshake message
func (c *Connection) sendRaw(frame []byte) error {
	return c.enqueue(outbound{raw: frame})
}

// closeAfterFlush closes the connection once everything queued so far is written
func (c *Connection) closeAfterFlush() {
	if err := c.enqueue(outbound{closeAfter: true}); err != nil {
		_ = c.Close()
	}
}

// waitClosed blocks until the writer has closed the connection or d elapses
func (c *Connection) waitClosed(d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.done:
	case <-t.C:
	}
}

func (c *Connection) enqueue(o outbound) error {
	if !c.IsOpen() {
		return ErrConnClosed
	}
	select {
	case c.out <- o:
		return nil
	default:
		c.logger.Warn("outbound buffer full, disconnecting")
		_ = c.Close()
		return ErrSlowConsumer
	}
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case o := <-c.out:
			if o.closeAfter {
				_ = c.Close()
				return
			}
			if err := c.write(o); err != nil {
				if c.IsOpen() {
					c.logger.Debug("write failed", slog.String("error", err.Error()))
				}
				_ = c.Close()
				return
			}
		}
	}
}

func (c *Connection) write(o outbound) error {
	frame := o.raw
	if o.msg != nil {
		payload, err := c.channel.Encrypt(protocol.Encode(o.msg))
		if err != nil {
			return err
		}
		f, err := protocol.NewFrame(o.msg.Type(), c.version, payload)
		if err != nil {
			return err
		}
		frame = f.Bytes()
	}
	if c.writeTTL > 0 {
		_ = c.netConn.SetWriteDeadline(time.Now().Add(c.writeTTL))
	}
	_, err := c.netConn.Write(frame)
	return err
}

// readFrame blocks for the next frame
func (c *Connection) readFrame() (protocol.Header, []byte, error) {
	head := make([]byte, protocol.HeaderSize)
	if _, err := io.ReadFull(c.reader, head); err != nil {
		return protocol.Header{}, nil, err
	}
	h, err := protocol.DecodeHeader(head)
	if err != nil {
		return protocol.Header{}, nil, protocolError("frame", err)
	}
	payload := make([]byte, h.Length)
	if _, err := io.ReadFull(c.reader, payload); err != nil {
		return protocol.Header{}, nil, err
	}
	return h, payload, nil
}

// frame builds a plaintext or pre-sealed frame for the handshake
func (c *Connection) frame(msgType uint16, payload []byte) ([]byte, error) {
	f, err := protocol.NewFrame(msgType, c.version, payload)
	if err != nil {
		return nil, err
	}
	return f.Bytes(), nil
}
