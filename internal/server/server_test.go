package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/tbourn/go-view-backend/internal/auth"
	"github.com/tbourn/go-view-backend/internal/command"
)

// echoRouter registers a single R 703 handler that reflects the caller.
func echoRouter() *command.Router {
	r := command.NewRouter()
	r.Register(command.OpRead, 703, func(ctx context.Context, cmd *command.Command) command.Result {
		return command.OK(map[string]string{"user": cmd.User})
	})
	return r
}

func startServer(t *testing.T, v *auth.Verifier, rl *RateLimiter) *Server {
	t.Helper()
	s := New("127.0.0.1:0", echoRouter(), v, rl, 64<<10, 2*time.Second)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func dial(t *testing.T, s *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", s.ListenAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, br *bufio.Reader, frame string) command.Result {
	t.Helper()
	if _, err := fmt.Fprintf(conn, "%s\n", frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	line, err := br.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	var res command.Result
	if err := json.Unmarshal(line, &res); err != nil {
		t.Fatalf("unmarshal result %q: %v", line, err)
	}
	return res
}

func TestServer_CommandRoundTrip(t *testing.T) {
	s := startServer(t, auth.NewVerifier(""), nil)
	conn := dial(t, s)
	br := bufio.NewReader(conn)

	res := roundTrip(t, conn, br, `[0,0,{"ops":"R","code":703,"user":"u1"}]`)
	if res.Code != command.StatusOK {
		t.Fatalf("result = %+v, want 200", res)
	}
}

func TestServer_BadFrameLeavesConnectionUsable(t *testing.T) {
	s := startServer(t, auth.NewVerifier(""), nil)
	conn := dial(t, s)
	br := bufio.NewReader(conn)

	res := roundTrip(t, conn, br, `this is not json`)
	if res.Code != command.StatusBadRequest {
		t.Fatalf("bad frame result = %+v, want 400", res)
	}

	// Same connection keeps working.
	res = roundTrip(t, conn, br, `[0,0,{"ops":"R","code":703,"user":"u1"}]`)
	if res.Code != command.StatusOK {
		t.Fatalf("follow-up result = %+v, want 200", res)
	}
}

func TestServer_SignatureEnforced(t *testing.T) {
	v := auth.NewVerifier("test-secret")
	s := startServer(t, v, nil)
	conn := dial(t, s)
	br := bufio.NewReader(conn)

	res := roundTrip(t, conn, br, `[0,0,{"ops":"R","code":703,"user":"u1"}]`)
	if res.Code != command.StatusUnauthorized {
		t.Fatalf("unsigned command result = %+v, want 401", res)
	}

	tok, err := v.Sign("u1")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	res = roundTrip(t, conn, br, `[0,0,{"ops":"R","code":703,"user":"u1","sig":"`+tok+`"}]`)
	if res.Code != command.StatusOK {
		t.Fatalf("signed command result = %+v, want 200", res)
	}
}

func TestServer_RateLimitPerUser(t *testing.T) {
	// Zero refill, burst 1: the second command from the same user must fail.
	s := startServer(t, auth.NewVerifier(""), NewRateLimiter(0, 1))
	conn := dial(t, s)
	br := bufio.NewReader(conn)

	res := roundTrip(t, conn, br, `[0,0,{"ops":"R","code":703,"user":"u1"}]`)
	if res.Code != command.StatusOK {
		t.Fatalf("first command: %+v", res)
	}
	res = roundTrip(t, conn, br, `[0,0,{"ops":"R","code":703,"user":"u1"}]`)
	if res.Code != command.StatusRateLimited {
		t.Fatalf("second command = %+v, want 429", res)
	}

	// A different identity gets its own bucket.
	res = roundTrip(t, conn, br, `[0,0,{"ops":"R","code":703,"user":"u2"}]`)
	if res.Code != command.StatusOK {
		t.Fatalf("other user = %+v, want 200", res)
	}
}

func TestServer_ShutdownStopsAccepting(t *testing.T) {
	s := New("127.0.0.1:0", echoRouter(), auth.NewVerifier(""), nil, 64<<10, time.Second)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := s.ListenAddr().String()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if conn, err := net.DialTimeout("tcp", addr, 300*time.Millisecond); err == nil {
		conn.Close()
		t.Fatalf("listener still accepting after shutdown")
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(0, 2)

	if !rl.Allow("k") || !rl.Allow("k") {
		t.Fatalf("burst of 2 should allow two calls")
	}
	if rl.Allow("k") {
		t.Fatalf("third call should be limited")
	}
	if !rl.Allow("other") {
		t.Fatalf("distinct keys have distinct buckets")
	}
}

func TestLimitKey(t *testing.T) {
	if got := limitKey("u1", "10.0.0.1:9999"); got != "user:u1" {
		t.Fatalf("got %q", got)
	}
	if got := limitKey("", "10.0.0.1:9999"); got != "ip:10.0.0.1" {
		t.Fatalf("got %q", got)
	}
	if got := limitKey("", "bogus"); got != "ip:bogus" {
		t.Fatalf("got %q", got)
	}
}
