package realtime

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialTestHub connects a client to a hub behind a websocket endpoint. It
// returns the dialer's conn plus the server-side conn the hub registered;
// the latter is the one Unregister expects.
func dialTestHub(t *testing.T, hub *Hub) (client, registered *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverConns := make(chan *websocket.Conn, 1)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listener not permitted in this environment: %v", err)
	}

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.Register <- conn
		serverConns <- conn
	}))
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)

	wsURL := "ws" + srv.URL[len("http"):]
	client, _, err = websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	select {
	case registered = <-serverConns:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the server-side conn")
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for registration")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return client, registered
}

func TestHub_Broadcast(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	conn, _ := dialTestHub(t, hub)

	msg := []byte(`{"type":"OrderPlaced"}`)
	select {
	case hub.Broadcast <- msg:
	case <-time.After(time.Second):
		t.Fatalf("timed out sending to hub")
	}

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
	case got := <-readCh:
		if string(got) != string(msg) {
			t.Fatalf("expected %q, got %q", msg, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for broadcast")
	}
}

func TestHub_UnregisterRemovesClient(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	_, registered := dialTestHub(t, hub)

	hub.Unregister <- registered

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for unregister")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_StopClosesClients(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	go hub.Run()

	dialTestHub(t, hub)
	hub.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for shutdown")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
