package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWriteLineToConsole(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)

	s.WriteLine("run-1", StreamStdout, "check passed")
	s.WriteLine("run-1", StreamStderr, "warning: slow rule")

	out := buf.String()
	if !strings.Contains(out, "check passed") || !strings.Contains(out, "warning: slow rule") {
		t.Errorf("console output = %q", out)
	}

	lines := s.Lines()
	if len(lines) != 2 {
		t.Fatalf("Lines() len = %d, want 2", len(lines))
	}
}

func TestNilWriterBuffersSilently(t *testing.T) {
	s := New(nil)
	s.WriteLine("run-1", StreamStdout, "captured")

	if got := s.Lines(); len(got) != 1 || got[0] != "captured" {
		t.Errorf("Lines() = %v", got)
	}
}

func TestReset(t *testing.T) {
	s := New(nil)
	s.WriteLine("run-1", StreamStdout, "a")
	s.Reset()

	if got := s.Lines(); len(got) != 0 {
		t.Errorf("Lines() after Reset = %v", got)
	}

	// Sink is reusable after Reset.
	s.WriteLine("run-2", StreamStdout, "b")
	if got := s.Lines(); len(got) != 1 || got[0] != "b" {
		t.Errorf("Lines() = %v", got)
	}
}

func TestCloseDropsWrites(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	s.WriteLine("run-1", StreamStdout, "late")

	if buf.Len() != 0 {
		t.Errorf("write after Close reached console: %q", buf.String())
	}
	if len(s.Lines()) != 0 {
		t.Error("write after Close was buffered")
	}

	// Double close is fine.
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestTruncation(t *testing.T) {
	s := New(nil)
	for i := 0; i < maxBufferedLines+50; i++ {
		s.WriteLine("run-1", StreamStdout, fmt.Sprintf("line %d", i))
	}

	lines := s.Lines()
	if len(lines) != maxBufferedLines+1 {
		t.Fatalf("Lines() len = %d, want %d", len(lines), maxBufferedLines+1)
	}
	if !strings.Contains(lines[maxBufferedLines], "truncated") {
		t.Errorf("last line = %q, want truncation marker", lines[maxBufferedLines])
	}
}

func TestHubBroadcastToSubscriber(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(hub.Handler))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	// Wait for registration before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s := New(nil)
	s.AttachHub(hub)
	s.WriteLine("run-42", StreamStdout, "hello subscriber")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}

	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("message not JSON: %v", err)
	}
	if msg.RunID != "run-42" || msg.Stream != "stdout" || msg.Line != "hello subscriber" {
		t.Errorf("message = %+v", msg)
	}
	if msg.Timestamp == "" {
		t.Error("timestamp not set")
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	// A subscriber whose send channel is never drained.
	slow := &client{hub: hub, send: make(chan []byte)}
	hub.register <- slow

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Poll the client count while broadcasts are dropping the subscriber.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			hub.ClientCount()
		}
	}()
	for i := 0; i < 200; i++ {
		hub.Broadcast(StreamMessage{RunID: "run-1", Stream: "stdout", Line: "x"})
	}
	<-done

	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow subscriber was not dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubStopDisconnectsClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.Handler))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Stop()
	// Stop twice must not panic.
	hub.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break // connection closed by hub
		}
	}
}
