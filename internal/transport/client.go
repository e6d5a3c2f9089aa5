package transport

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/protocol"
)

// ErrNotConnected is returned by Send while the connection is down. Sends
// are simply not attempted; the caller decides whether that matters.
var ErrNotConnected = errors.New("transport: not connected")

type MessageKind string

const (
	KindEvent        MessageKind = "event"
	KindConnected    MessageKind = "connected"
	KindDisconnected MessageKind = "disconnected"
)

// Message is one item on the client's outbound channel: either a decoded
// protocol event or a connection-state notice.
type Message struct {
	Kind  MessageKind
	Event protocol.Event
	Err   error
}

type Options struct {
	// BackendURL is the websocket base, e.g. ws://127.0.0.1:8080. The
	// chat path and user id are appended.
	BackendURL      string
	UserID          string
	DialTimeout     time.Duration
	MaxMessageBytes int64
	PingInterval    time.Duration
	Logf            func(format string, args ...any)
}

// Client maintains the chat websocket: dial, read pump, reconnect with
// exponential backoff and jitter. Decoded events and connection notices
// are delivered in order on a single channel with exactly one expected
// consumer.
type Client struct {
	chatURL         string
	userID          string
	dialTimeout     time.Duration
	maxMessageBytes int64
	pingInterval    time.Duration
	logf            func(format string, args ...any)

	out chan Message

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

func NewClient(opts Options) (*Client, error) {
	base := strings.TrimSpace(opts.BackendURL)
	if base == "" {
		return nil, errors.New("backend url is required")
	}
	userID := strings.TrimSpace(opts.UserID)
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 15 * time.Second
	}
	maxMsg := opts.MaxMessageBytes
	if maxMsg <= 0 {
		maxMsg = 4 << 20
	}
	ping := opts.PingInterval
	if ping <= 0 {
		ping = 30 * time.Second
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Client{
		chatURL:         strings.TrimRight(base, "/") + "/ws/chat/" + userID,
		userID:          userID,
		dialTimeout:     dialTimeout,
		maxMessageBytes: maxMsg,
		pingInterval:    ping,
		logf:            logf,
		out:             make(chan Message, 256),
	}, nil
}

func (c *Client) UserID() string {
	if c == nil {
		return ""
	}
	return c.userID
}

// Messages is the single-consumer channel of events and notices.
func (c *Client) Messages() <-chan Message {
	if c == nil {
		return nil
	}
	return c.out
}

func (c *Client) Connected() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Run connects and reconnects until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	if c == nil {
		return errors.New("transport client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := 1 * time.Second
	const backoffMax = 30 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.runOnce(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		c.logf("transport: disconnected url=%s err=%v", c.chatURL, err)
		c.out <- Message{Kind: KindDisconnected, Err: err}

		jitter := time.Duration(rand.IntN(500)) * time.Millisecond
		sleep := backoff + jitter
		if sleep > backoffMax {
			sleep = backoffMax
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.chatURL, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(c.maxMessageBytes)

	c.setConn(conn)
	defer func() {
		c.setConn(nil)
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	c.logf("transport: connected url=%s", c.chatURL)
	c.out <- Message{Kind: KindConnected}

	readErr := make(chan error, 1)
	go func() {
		for {
			mt, data, err := conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			if mt != websocket.MessageText {
				continue
			}
			ev, err := protocol.ParseEvent(data)
			if err != nil {
				c.logf("transport: dropping bad frame: %v", err)
				continue
			}
			c.out <- Message{Kind: KindEvent, Event: ev}
		}
	}()

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				return err
			}
		}
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.connected = conn != nil
}

// Send writes one chat request frame. While disconnected the send is not
// attempted and ErrNotConnected is returned.
func (c *Client) Send(ctx context.Context, req protocol.ChatRequest) error {
	if c == nil {
		return errors.New("transport client is nil")
	}
	data, err := req.Marshal()
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
