package realtime

import (
	"encoding/json"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHub_NotifyReachesConnectedClient(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listener not permitted in this environment: %v", err)
	}

	srv := httptest.NewUnstartedServer(hub.Handler())
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)

	wsURL := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
	})

	// The handler registers asynchronously; give the hub a moment to
	// pick the connection up before broadcasting.
	time.Sleep(50 * time.Millisecond)

	hub.Notify("O1", "order O1 completed: all products reserved and confirmed")

	readCh := make(chan []byte, 1)
	go func() {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("read message: %v", err)
			return
		}
		readCh <- data
	}()

	select {
	case raw := <-readCh:
		var got Notification
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.OrderID != "O1" {
			t.Fatalf("expected order O1, got %q", got.OrderID)
		}
		if got.Message == "" || got.At.IsZero() {
			t.Fatalf("incomplete notification: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for notification")
	}
}

func TestHub_NotifyNeverBlocksWithoutClients(t *testing.T) {
	t.Parallel()

	// No Run loop draining the buffer: the notifier must still return.
	hub := NewHub(nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Notify("O2", "order O2 failed: reservations rolled back")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Notify blocked with no connected clients")
	}
}
