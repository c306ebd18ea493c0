package hub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-detect/internal/log"
)

// fakeConn records writes and blocks reads until closed.
type fakeConn struct {
	mu     sync.Mutex
	writes []written
	closed chan struct{}
	once   sync.Once
}

type written struct {
	kind int
	data []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) SetReadLimit(int64) {}
func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetPongHandler(func(appData string) error) {}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("closed")
}

func (c *fakeConn) WriteMessage(kind int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, written{kind: kind, data: append([]byte(nil), data...)})
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) messages(kind int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, w := range c.writes {
		if w.kind == kind {
			out = append(out, string(w.data))
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func startHub(t *testing.T, opts ...Option) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", append([]Option{WithLogger(log.Discard())}, opts...)...)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	waitFor(t, "hub running", h.IsRunning)
	t.Cleanup(cancel)
	return h, cancel
}

func connect(t *testing.T, h *Hub) (*Client, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	c := NewClient(h, conn)
	if c == nil {
		t.Fatal("NewClient returned nil on a running hub")
	}
	go c.Run()
	return c, conn
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	h, _ := startHub(t)

	_, a := connect(t, h)
	_, b := connect(t, h)
	waitFor(t, "two clients", func() bool { return h.ClientCount() == 2 })

	if err := h.BroadcastJSON(map[string]string{"object_count": "1"}); err != nil {
		t.Fatal(err)
	}
	h.BroadcastBinary([]byte{0xFF, 0xD8})

	for name, conn := range map[string]*fakeConn{"a": a, "b": b} {
		waitFor(t, name+" messages", func() bool {
			return len(conn.messages(websocket.TextMessage)) == 1 &&
				len(conn.messages(websocket.BinaryMessage)) == 1
		})
		if got := conn.messages(websocket.TextMessage)[0]; got != `{"object_count":"1"}` {
			t.Errorf("%s text = %s", name, got)
		}
	}
}

func TestHub_RetainLast(t *testing.T) {
	h, _ := startHub(t, WithRetainLast())

	h.BroadcastJSON("first")
	h.BroadcastJSON("second")
	// Let the hub consume the queue before anyone connects.
	waitFor(t, "queue drained", func() bool { return len(h.broadcast) == 0 })
	time.Sleep(5 * time.Millisecond)

	_, conn := connect(t, h)
	waitFor(t, "replayed message", func() bool { return len(conn.messages(websocket.TextMessage)) == 1 })

	if got := conn.messages(websocket.TextMessage)[0]; got != `"second"` {
		t.Errorf("late joiner got %s, want the last message", got)
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	h, _ := startHub(t)

	_, conn := connect(t, h)
	waitFor(t, "client registered", func() bool { return h.ClientCount() == 1 })

	conn.Close()
	waitFor(t, "client unregistered", func() bool { return h.ClientCount() == 0 })
}

func TestHub_StopDisconnectsClients(t *testing.T) {
	h, cancel := startHub(t)

	_, conn := connect(t, h)
	waitFor(t, "client registered", func() bool { return h.ClientCount() == 1 })

	cancel()
	waitFor(t, "hub stopped", func() bool { return !h.IsRunning() })
	waitFor(t, "close frame", func() bool { return len(conn.messages(websocket.CloseMessage)) == 1 })

	if c := NewClient(h, newFakeConn()); c != nil {
		t.Error("NewClient on a stopped hub should return nil")
	}
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	h, _ := startHub(t)
	for i := 0; i < 10; i++ {
		h.BroadcastBinary([]byte{byte(i)})
	}
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount = %d", h.ClientCount())
	}
	if h.Name() != "test" {
		t.Errorf("Name = %q", h.Name())
	}
}

// releasedConn counts writes and closes made after its owner let go of it.
type releasedConn struct {
	*fakeConn
	released atomic.Bool
	lateUse  atomic.Int32
}

func (c *releasedConn) touch() {
	if c.released.Load() {
		c.lateUse.Add(1)
	}
}

func (c *releasedConn) SetWriteDeadline(time.Time) error {
	c.touch()
	return nil
}

func (c *releasedConn) WriteMessage(kind int, data []byte) error {
	c.touch()
	return c.fakeConn.WriteMessage(kind, data)
}

func (c *releasedConn) Close() error {
	c.touch()
	return c.fakeConn.Close()
}

func TestClient_RunOwnsConnUntilReturn(t *testing.T) {
	h, _ := startHub(t)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.BroadcastBinary([]byte{0x01})
				time.Sleep(50 * time.Microsecond)
			}
		}
	}()

	conns := make([]*releasedConn, 0, 200)
	for i := 0; i < 200; i++ {
		conn := &releasedConn{fakeConn: newFakeConn()}
		c := NewClient(h, conn)
		if c == nil {
			t.Fatal("NewClient returned nil on a running hub")
		}

		done := make(chan struct{})
		go func() {
			c.Run()
			conn.released.Store(true)
			close(done)
		}()

		// Disconnect from the peer side without going through the wrapper.
		conn.fakeConn.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("client %d: Run did not return after disconnect", i)
		}
		conns = append(conns, conn)
	}

	close(stop)
	wg.Wait()
	time.Sleep(20 * time.Millisecond)

	for i, conn := range conns {
		if n := conn.lateUse.Load(); n != 0 {
			t.Fatalf("client %d: connection used %d times after Run returned", i, n)
		}
	}
	waitFor(t, "all clients unregistered", func() bool { return h.ClientCount() == 0 })
}
