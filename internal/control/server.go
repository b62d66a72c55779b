package control

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"google.golang.org/grpc"
)

// Server wraps the gRPC server and its Unix Domain Socket listener, the
// same shape as the admin signer service this stack inherits the pattern
// from.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
}

// NewServer creates a control-plane gRPC server bound to socketPath and
// registers impl as its Service handler.
func NewServer(socketPath string, impl Service) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o700); err != nil {
		return nil, fmt.Errorf("control: create socket directory: %w", err)
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("control: remove stale socket: %w", err)
	}

	lis, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("control: listen on unix socket %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		lis.Close()
		return nil, fmt.Errorf("control: chmod socket: %w", err)
	}

	// No codec option here: the cborCodec registered by codec.go's init()
	// is selected per-call via the "cbor" content-subtype the client sends
	// (see client.go), which is how gRPC-Go's encoding.Codec extension
	// point is meant to be used without a custom transport.
	gs := grpc.NewServer()
	RegisterService(gs, impl)

	return &Server{grpcServer: gs, listener: lis, socketPath: socketPath}, nil
}

// Serve blocks accepting connections until the server is stopped.
func (s *Server) Serve() error {
	return s.grpcServer.Serve(s.listener)
}

// GracefulStop drains in-flight RPCs and removes the socket file.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
	os.Remove(s.socketPath)
}
