// Package server – TCP command transport.
//
// Clients hold persistent TCP connections and send one command frame per
// line (a three-element JSON array, see the command package). The server
// answers every frame with exactly one JSON result line. There is no
// session state: each command is an independent unit of work, handled in
// its own goroutine; responses to one connection are serialized by a
// writer mutex, so ordering between commands is whatever the handlers
// finish in — callers that need ordering must wait for each result.
//
// Failure posture: a malformed frame, a rejected signature, or a storage
// error fails that one command with a structured result; the connection
// stays usable and the process never crashes on command input.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-view-backend/internal/auth"
	"github.com/tbourn/go-view-backend/internal/command"
)

// tracerName identifies command spans in the tracer provider.
const tracerName = "github.com/tbourn/go-view-backend/internal/server"

// Server accepts command connections and dispatches decoded frames into
// the router. Construct with New, then Start; Shutdown drains in-flight
// work.
type Server struct {
	// Addr is the listen address (host:port).
	Addr string
	// Router dispatches decoded commands.
	Router *command.Router
	// Verifier checks envelope signatures before dispatch.
	Verifier *auth.Verifier
	// Limiter throttles commands per identity (user id, else remote IP).
	Limiter *RateLimiter
	// MaxFrameBytes bounds a single frame; longer lines fail the connection.
	MaxFrameBytes int
	// IdleTimeout is the per-connection read deadline between frames.
	IdleTimeout time.Duration

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool

	wg sync.WaitGroup
}

// New constructs a Server with the given collaborators.
func New(addr string, r *command.Router, v *auth.Verifier, rl *RateLimiter, maxFrame int, idle time.Duration) *Server {
	return &Server{
		Addr:          addr,
		Router:        r,
		Verifier:      v,
		Limiter:       rl,
		MaxFrameBytes: maxFrame,
		IdleTimeout:   idle,
		conns:         make(map[net.Conn]struct{}),
	}
}

// Start binds the listener and launches the accept loop. It returns once
// the listener is bound; accept errors after Shutdown are swallowed.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	log.Info().Str("addr", ln.Addr().String()).Msg("command server listening")

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// ListenAddr returns the bound address, useful when Addr held port 0.
func (s *Server) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting, then waits for in-flight connections up to the
// context deadline; connections still open after that are force-closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	ln := s.ln
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

// acceptLoop accepts connections until the listener closes.
func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Msg("accept failed")
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		connsOpen.Inc()
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn reads frames off one connection until EOF, idle timeout, or
// an oversized line. Commands run concurrently; writes are serialized.
func (s *Server) handleConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	lg := log.With().Str("remote", remote).Logger()
	lg.Debug().Msg("connection opened")

	var writeMu sync.Mutex
	var cmdWG sync.WaitGroup

	defer func() {
		cmdWG.Wait()
		_ = conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		connsOpen.Dec()
		s.wg.Done()
		lg.Debug().Msg("connection closed")
	}()

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), s.MaxFrameBytes)

	for {
		if s.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.IdleTimeout))
		}
		if !sc.Scan() {
			if err := sc.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
				lg.Debug().Err(err).Msg("read loop ended")
			}
			return
		}
		frame := make([]byte, len(sc.Bytes()))
		copy(frame, sc.Bytes())
		if len(frame) == 0 {
			continue
		}

		cmdWG.Add(1)
		go func() {
			defer cmdWG.Done()
			res := s.process(context.Background(), frame, remote)
			writeResult(conn, &writeMu, res, lg)
		}()
	}
}

// process turns one raw frame into a Result: decode, verify, rate-limit,
// dispatch. Every path produces a structured result; nothing is dropped.
func (s *Server) process(ctx context.Context, frame []byte, remote string) command.Result {
	start := time.Now()
	cmdID := uuid.NewString()

	cmdInflight.Inc()
	defer cmdInflight.Dec()

	cmd, err := command.Decode(frame)
	if err != nil {
		observeCommand("?", 0, command.StatusBadRequest, time.Since(start).Seconds())
		log.Warn().Str("command_id", cmdID).Str("remote", remote).Err(err).Msg("rejected frame")
		return command.Failure(command.StatusBadRequest, err.Error())
	}

	lg := log.With().
		Str("command_id", cmdID).
		Str("remote", remote).
		Str("ops", string(cmd.Op)).
		Int("code", cmd.Code).
		Str("user", cmd.User).
		Logger()

	if err := s.Verifier.Verify(cmd.Sig, cmd.User); err != nil {
		lg.Warn().Err(err).Msg("signature rejected")
		res := command.Failure(command.StatusUnauthorized, err.Error())
		observeCommand(string(cmd.Op), cmd.Code, res.Code, time.Since(start).Seconds())
		return res
	}

	if s.Limiter != nil && !s.Limiter.Allow(limitKey(cmd.User, remote)) {
		res := command.Failure(command.StatusRateLimited, "rate limit exceeded")
		observeCommand(string(cmd.Op), cmd.Code, res.Code, time.Since(start).Seconds())
		return res
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx,
		fmt.Sprintf("command %s %d", cmd.Op, cmd.Code),
		trace.WithAttributes(
			attribute.String("command.ops", string(cmd.Op)),
			attribute.Int("command.code", cmd.Code),
		))
	res := s.Router.Dispatch(ctx, cmd)
	span.End()

	latency := time.Since(start)
	observeCommand(string(cmd.Op), cmd.Code, res.Code, latency.Seconds())

	ev := lg.Info()
	if res.Code >= 500 {
		ev = lg.Error()
	} else if res.Code >= 400 {
		ev = lg.Warn()
	}
	ev.Int("status", res.Code).Dur("latency", latency).Msg("command handled")

	return res
}

// writeResult serializes one result as a JSON line under the connection's
// write mutex. Write failures end the connection's usefulness but are not
// fatal to the process.
func writeResult(conn net.Conn, mu *sync.Mutex, res command.Result, lg zerolog.Logger) {
	buf, err := json.Marshal(res)
	if err != nil {
		buf = []byte(`{"code":500,"message":"response encoding failed"}`)
	}
	buf = append(buf, '\n')

	mu.Lock()
	_, werr := conn.Write(buf)
	mu.Unlock()
	if werr != nil {
		lg.Debug().Err(werr).Msg("write failed")
	}
}

// limitKey prefers the authenticated identity and falls back to the
// remote address, prefixed to keep the namespaces distinct.
func limitKey(user, remote string) string {
	if user != "" {
		return "user:" + user
	}
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return "ip:" + host
	}
	return "ip:" + remote
}
