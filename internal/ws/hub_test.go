package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"voicetasks-backend/internal/tasks"
)

func startHub(t *testing.T, store tasks.Store) (*Hub, string) {
	t.Helper()
	hub := NewHub(store)
	server := httptest.NewServer(hub.Handler())
	t.Cleanup(server.Close)
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dialHub(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	origin := "http" + strings.TrimPrefix(url, "ws")
	conn, err := websocket.Dial(url, "", origin)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func receive(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m Message
	if err := websocket.JSON.Receive(conn, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestHubSendsSnapshotOnRegister(t *testing.T) {
	store := tasks.NewMemoryStore()
	store.Create(context.Background(), tasks.Task{Description: "buy milk"})

	_, url := startHub(t, store)
	conn := dialHub(t, url)

	m := receive(t, conn)
	if m.Type != TypeTasksUpdate {
		t.Fatalf("first message type = %q, want tasks_update", m.Type)
	}
	if len(m.Tasks) != 1 || m.Tasks[0].Description != "buy milk" {
		t.Errorf("snapshot payload = %+v", m.Tasks)
	}
}

func TestHubBroadcastReachesClient(t *testing.T) {
	store := tasks.NewMemoryStore()
	hub, url := startHub(t, store)
	conn := dialHub(t, url)

	receive(t, conn) // initial snapshot
	waitFor(t, func() bool { return hub.ConnCount() == 1 })

	hub.Broadcast(TaskUpdate(tasks.Task{ID: 5, Description: "walk dog"}))

	m := receive(t, conn)
	if m.Type != TypeTaskUpdate {
		t.Fatalf("type = %q, want task_update", m.Type)
	}
	if m.Data == nil || m.Data.ID != 5 {
		t.Errorf("payload = %+v", m.Data)
	}
}

func TestHubAnswersPingWithPong(t *testing.T) {
	store := tasks.NewMemoryStore()
	_, url := startHub(t, store)
	conn := dialHub(t, url)

	receive(t, conn) // initial snapshot

	if err := websocket.JSON.Send(conn, Message{Type: TypePing}); err != nil {
		t.Fatal(err)
	}
	m := receive(t, conn)
	if m.Type != TypePong {
		t.Fatalf("type = %q, want pong", m.Type)
	}
}

func TestHubServesResyncRequest(t *testing.T) {
	store := tasks.NewMemoryStore()
	_, url := startHub(t, store)
	conn := dialHub(t, url)

	receive(t, conn) // initial snapshot

	store.Create(context.Background(), tasks.Task{Description: "added later"})
	if err := websocket.JSON.Send(conn, Message{Type: TypeRequestResync}); err != nil {
		t.Fatal(err)
	}

	m := receive(t, conn)
	if m.Type != TypeTasksUpdate {
		t.Fatalf("type = %q, want tasks_update", m.Type)
	}
	if len(m.Tasks) != 1 || m.Tasks[0].Description != "added later" {
		t.Errorf("resync payload = %+v", m.Tasks)
	}
}

func TestHubServesLegacyGetTasks(t *testing.T) {
	store := tasks.NewMemoryStore()
	_, url := startHub(t, store)
	conn := dialHub(t, url)

	receive(t, conn)

	if err := websocket.JSON.Send(conn, Message{Type: TypeGetTasks}); err != nil {
		t.Fatal(err)
	}
	if m := receive(t, conn); m.Type != TypeTasksUpdate {
		t.Fatalf("type = %q, want tasks_update", m.Type)
	}
}

func TestHubRemovesClosedConnection(t *testing.T) {
	store := tasks.NewMemoryStore()
	hub, url := startHub(t, store)
	conn := dialHub(t, url)

	receive(t, conn)
	waitFor(t, func() bool { return hub.ConnCount() == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.ConnCount() == 0 })

	// a broadcast after removal must not block or panic
	hub.Broadcast(TaskUpdate(tasks.Task{ID: 1}))
}

func TestHubClosesUnresponsiveConnection(t *testing.T) {
	store := tasks.NewMemoryStore()
	hub := NewHub(store)
	hub.SetProbePolicy(20*time.Millisecond, 2)

	server := httptest.NewServer(hub.Handler())
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialHub(t, url)
	receive(t, conn) // snapshot; after this the client never answers pings

	// drain pings without ponging so the probe counter advances
	go func() {
		for {
			var m Message
			if err := websocket.JSON.Receive(conn, &m); err != nil {
				return
			}
		}
	}()

	waitFor(t, func() bool { return hub.ConnCount() == 0 })
}

func TestHubIsolatesFailedConnections(t *testing.T) {
	store := tasks.NewMemoryStore()
	hub, url := startHub(t, store)

	dead := dialHub(t, url)
	receive(t, dead)
	live := dialHub(t, url)
	receive(t, live)
	waitFor(t, func() bool { return hub.ConnCount() == 2 })

	dead.Close()

	hub.Broadcast(TaskUpdate(tasks.Task{ID: 8, Description: "still flowing"}))

	m := receive(t, live)
	if m.Type != TypeTaskUpdate || m.Data == nil || m.Data.ID != 8 {
		t.Errorf("live connection missed the broadcast: %+v", m)
	}
}
