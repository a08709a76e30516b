// Package operator — server.go
//
// Unix domain socket server giving a human operator a narrow channel
// into a running Sentinel: check its current governance level and Γ,
// verify the flight recorder's chain integrity, and record a human
// checkpoint.
//
// Protocol: newline-delimited JSON over a Unix domain socket.
// Socket path: /run/sentineld/operator.sock (configurable).
// Permissions: 0600. Only the socket owner can connect.
//
// Commands (JSON request → JSON response):
//
//	{"cmd":"status"}
//	  → Response: {"ok":true,"level":"confirmation","gamma":0.52}
//
//	{"cmd":"checkpoint","note":"reviewed trajectory, approved continuation"}
//	  → Records a human checkpoint, resetting the human-latency sub-score.
//	  → Response: {"ok":true}
//
//	{"cmd":"verify"}
//	  → Verifies the flight recorder's hash chain.
//	  → Response: {"ok":true,"chain_valid":true,"merkle_root":"..."}
//
// Security:
//   - Socket is created with 0600 permissions.
//   - Each connection is handled in a separate goroutine.
//   - Max concurrent connections: 4.
//   - Max request size: 4096 bytes.
//   - Connection timeout: 10s.
//   - Commands are rate-limited by a token bucket shared across connections,
//     so a misbehaving or compromised operator client can't flood checkpoint
//     or verify commands.
package operator

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/sentineld/sentineld/internal/intervention"
	"github.com/sentineld/sentineld/internal/trajectory"
)

const (
	maxConcurrentConns = 4
	maxRequestBytes    = 4096
	connTimeout        = 10 * time.Second
)

// SentinelHandle is the narrow view of a Sentinel the operator server
// needs. Implemented by *sentinel.Sentinel.
type SentinelHandle interface {
	CurrentLevel() intervention.GovernanceLevel
	CurrentGamma() trajectory.GammaScore
	HumanCheckpoint(note string)
	VerifyChain() error
	MerkleRoot() ([]byte, error)
}

// Request is the JSON structure for operator commands.
type Request struct {
	Cmd  string `json:"cmd"` // status | checkpoint | verify
	Note string `json:"note,omitempty"`
}

// Response is the JSON structure for operator command responses.
type Response struct {
	OK         bool    `json:"ok"`
	Error      string  `json:"error,omitempty"`
	Level      string  `json:"level,omitempty"`
	Gamma      float64 `json:"gamma,omitempty"`
	ChainValid bool    `json:"chain_valid,omitempty"`
	MerkleRoot string  `json:"merkle_root,omitempty"`
}

// Server is the operator Unix domain socket server.
type Server struct {
	socketPath string
	sentinel   SentinelHandle
	log        *zap.Logger
	sem        chan struct{}
	budget     *tokenBucket
}

// NewServer creates an operator Server. commandBudget/refillPeriod
// configure the shared command rate limiter.
func NewServer(socketPath string, sentinel SentinelHandle, log *zap.Logger, commandBudget int, refillPeriod time.Duration) *Server {
	return &Server{
		socketPath: socketPath,
		sentinel:   sentinel,
		log:        log,
		sem:        make(chan struct{}, maxConcurrentConns),
		budget:     newTokenBucket(commandBudget, refillPeriod),
	}
}

// ListenAndServe starts the operator socket server. Removes any stale
// socket file before binding. Blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("operator: remove stale socket %q: %w", s.socketPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("operator: mkdir %q: %w", filepath.Dir(s.socketPath), err)
	}

	lis, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("operator: listen %q: %w", s.socketPath, err)
	}
	defer lis.Close()

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("operator: chmod %q: %w", s.socketPath, err)
	}

	s.log.Info("operator socket listening", zap.String("path", s.socketPath))

	go func() {
		<-ctx.Done()
		s.budget.Close()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Error("operator: accept error", zap.Error(err))
				continue
			}
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.log.Warn("operator: max connections reached, rejecting")
			_ = conn.Close()
			continue
		}

		go func(c net.Conn) {
			defer func() { <-s.sem }()
			defer c.Close()
			s.handleConn(c)
		}(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		s.log.Warn("operator: read error", zap.Error(err))
		return
	}

	var req Request
	if err := json.Unmarshal(buf[:n], &req); err != nil {
		s.writeResponse(conn, Response{OK: false, Error: "invalid JSON: " + err.Error()})
		return
	}

	if !s.budget.Consume(1) {
		s.writeResponse(conn, Response{OK: false, Error: "rate limited: try again shortly"})
		return
	}

	resp := s.dispatch(req)
	s.writeResponse(conn, resp)
}

func (s *Server) dispatch(req Request) Response {
	switch req.Cmd {
	case "status":
		return s.cmdStatus()
	case "checkpoint":
		return s.cmdCheckpoint(req)
	case "verify":
		return s.cmdVerify()
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

func (s *Server) cmdStatus() Response {
	score := s.sentinel.CurrentGamma()
	return Response{OK: true, Level: s.sentinel.CurrentLevel().String(), Gamma: score.Composite}
}

func (s *Server) cmdCheckpoint(req Request) Response {
	if req.Note == "" {
		return Response{OK: false, Error: "note required for checkpoint"}
	}
	s.sentinel.HumanCheckpoint(req.Note)
	s.log.Info("operator: human checkpoint recorded", zap.String("note", req.Note))
	return Response{OK: true}
}

func (s *Server) cmdVerify() Response {
	chainErr := s.sentinel.VerifyChain()
	root, err := s.sentinel.MerkleRoot()
	resp := Response{OK: true, ChainValid: chainErr == nil}
	if chainErr != nil {
		resp.Error = chainErr.Error()
	}
	if err == nil {
		resp.MerkleRoot = hex.EncodeToString(root)
	}
	return resp
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}
