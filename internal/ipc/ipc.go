// Package ipc is a Unix-socket control channel for the engine.
//
// Protocol: line-delimited JSON.
//   - Client sends: {"type": "beat"} or {"type": "ping"}
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
//
// A beat request is queued as a beat candidate; the engine stamps it with
// its own clock when it polls the queue.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// DefaultSocketPath is where the daemon listens unless configured.
const DefaultSocketPath = "/tmp/breathpacer.sock"

// Request types.
const (
	TypeBeat = "beat"
	TypePing = "ping"
)

// Request is one client message.
type Request struct {
	Type string `json:"type"`
}

// Response is sent back for every request line.
type Response struct {
	Status string `json:"status"`          // "ok" or "error"
	Error  string `json:"error,omitempty"` // set when Status == "error"
}

// Signaler queues beats without blocking. It reports false when the beat
// was dropped.
type Signaler interface {
	Signal() bool
}

// Server accepts control connections.
type Server struct {
	socketPath string
	beats      Signaler
	logger     *slog.Logger
}

// NewServer creates a server that forwards beat requests to beats.
func NewServer(socketPath string, beats Signaler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{socketPath: socketPath, beats: beats, logger: logger}
}

// Run listens until ctx is canceled, then closes the listener and removes
// the socket file.
func (s *Server) Run(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(s.socketPath)

	if err := os.Chmod(s.socketPath, 0o660); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.logger.Info("IPC listening", "socket", s.socketPath)

	// Closing the listener unblocks Accept.
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.logger.Debug("IPC listener closed")
				return nil
			}
			s.logger.Error("IPC accept error", "error", err)
			continue
		}

		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	s.logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.logger.Debug("IPC received", "line", line)

		resp := s.handle([]byte(line))
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("IPC failed to send response", "error", err)
			return
		}
	}

	s.logger.Debug("IPC connection closed")
}

func (s *Server) handle(line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{Status: "error", Error: fmt.Sprintf("parse request: %v", err)}
	}

	switch req.Type {
	case TypePing:
		return Response{Status: "ok"}
	case TypeBeat:
		if !s.beats.Signal() {
			return Response{Status: "error", Error: "beat queue full"}
		}
		return Response{Status: "ok"}
	case "":
		return Response{Status: "error", Error: "missing type"}
	default:
		return Response{Status: "error", Error: fmt.Sprintf("unknown request type %q", req.Type)}
	}
}

// Send delivers one request and waits for the response.
func Send(socketPath string, req Request, timeout time.Duration) error {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("ipc error: %s", resp.Error)
	}
	return nil
}
