package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
)

// fakeConn records writes and blocks reads until closed.
type fakeConn struct {
	mu     sync.Mutex
	writes []Message
	closed chan struct{}
	once   sync.Once
	wrote  chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{}), wrote: make(chan struct{}, 64)}
}

func (f *fakeConn) SetReadLimit(int64) {}
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}
func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) WriteMessage(t int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	mt := JSONMessage
	switch t {
	case websocket.BinaryMessage:
		mt = BinaryMessage
	case websocket.TextMessage:
	default:
		return nil
	}
	f.writes = append(f.writes, Message{Type: mt, Data: data})
	f.wrote <- struct{}{}
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.writes...)
}

func waitCount(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test")
	go h.Run(ctx)

	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	for _, conn := range conns {
		c := NewClient(h, conn)
		go c.Run()
	}
	waitCount(t, h, 2)

	frame := FrameMessage{Seq: 1, Rows: 2, Cols: 3, Type: "CV_8UC3", Channels: 3, Format: "jpeg", Data: []byte{0xff, 0xd8}}
	if err := h.BroadcastCBOR(frame); err != nil {
		t.Fatalf("BroadcastCBOR: %v", err)
	}

	for i, conn := range conns {
		select {
		case <-conn.wrote:
		case <-time.After(2 * time.Second):
			t.Fatalf("client %d got nothing", i)
		}
		msgs := conn.messages()
		if msgs[0].Type != BinaryMessage {
			t.Errorf("client %d: type = %v, want binary", i, msgs[0].Type)
		}
		got, err := DecodeFrame(msgs[0].Data)
		if err != nil {
			t.Fatalf("DecodeFrame: %v", err)
		}
		if got.Seq != 1 || got.Type != "CV_8UC3" || got.Cols != 3 || len(got.Data) != 2 {
			t.Errorf("client %d: frame = %+v", i, got)
		}
	}
}

func TestHub_ClientCountCallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var counts []int
	h := New("test")
	h.OnClientCount = func(n int) {
		mu.Lock()
		counts = append(counts, n)
		mu.Unlock()
	}
	go h.Run(ctx)

	conn := newFakeConn()
	c := NewClient(h, conn)
	go c.Run()
	waitCount(t, h, 1)

	conn.Close()
	waitCount(t, h, 0)

	mu.Lock()
	defer mu.Unlock()
	if len(counts) != 2 || counts[0] != 1 || counts[1] != 0 {
		t.Errorf("counts = %v, want [1 0]", counts)
	}
}

func TestHub_StopRejectsNewClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("test")
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	conn := newFakeConn()
	c := NewClient(h, conn)
	go c.Run()
	waitCount(t, h, 1)

	cancel()
	<-stopped

	if h.IsRunning() {
		t.Error("hub should not be running")
	}
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount = %d after stop", h.ClientCount())
	}
	if NewClient(h, newFakeConn()) != nil {
		t.Error("NewClient on a stopped hub should return nil")
	}
}

func TestFrameMessage_DeterministicEncoding(t *testing.T) {
	f := FrameMessage{Seq: 42, Time: 1700000000, Rows: 1, Cols: 1, Type: "CV_8UC1", Channels: 1, Format: "jpeg", Data: []byte{1, 2, 3}}

	a, err := EncodeCBOR(f)
	if err != nil {
		t.Fatalf("EncodeCBOR: %v", err)
	}
	b, _ := EncodeCBOR(f)
	if string(a) != string(b) {
		t.Error("encoding should be deterministic")
	}

	if _, err := DecodeFrame([]byte{0xff}); err == nil {
		t.Error("DecodeFrame should reject garbage")
	}
}

func TestHub_BroadcastJSONIsText(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("video")
	go h.Run(ctx)

	conn := newFakeConn()
	go NewClient(h, conn).Run()
	waitCount(t, h, 1)

	status := map[string]any{"type": "status", "feed": h.Name(), "clients": 1}
	if err := h.BroadcastJSON(status); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}

	select {
	case <-conn.wrote:
	case <-time.After(2 * time.Second):
		t.Fatal("client got nothing")
	}
	msg := conn.messages()[0]
	if msg.Type != JSONMessage {
		t.Errorf("type = %v, want JSON", msg.Type)
	}
	if got, want := string(msg.Data), `{"clients":1,"feed":"video","type":"status"}`; got != want {
		t.Errorf("data = %s, want %s", got, want)
	}
}

func TestHub_BroadcastJSONError(t *testing.T) {
	h := New("test")
	if err := h.BroadcastJSON(make(chan int)); err == nil {
		t.Fatal("expected an encoding error")
	}
	if h.Dropped() != 0 {
		t.Errorf("Dropped = %d, an unencodable message is not queued", h.Dropped())
	}
}

func TestHub_DroppedWhenQueueFull(t *testing.T) {
	// Without Run nothing drains the broadcast queue.
	h := New("test")
	for i := 0; i < cap(h.broadcast)+3; i++ {
		h.Broadcast(NewBinaryMessage([]byte{byte(i)}))
	}
	if n := h.Dropped(); n != 3 {
		t.Errorf("Dropped = %d, want 3", n)
	}
	if h.IsRunning() {
		t.Error("hub without Run should not report running")
	}
}
