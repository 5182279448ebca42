package mail

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

// A server that accepts the connection but never sends a greeting must
// not hold FetchMessages past the context deadline.
func TestFetchMessagesHonorsContextDeadline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	conns := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conns <- conn
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		select {
		case conn := <-conns:
			_ = conn.Close()
		default:
		}
	})

	port := ln.Addr().(*net.TCPAddr).Port
	client := NewIMAPClient("127.0.0.1", port, "user", "secret", false)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.FetchMessages(ctx, FetchOptions{})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected an error from a silent server")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed > 3*time.Second {
		t.Errorf("FetchMessages returned after %v, want shortly after the deadline", elapsed)
	}
}
