package control

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

type testService struct {
	UnimplementedService
	status GetStatusResponse
}

func (s *testService) GetStatus(_ context.Context, _ *GetStatusRequest) (*GetStatusResponse, error) {
	return &s.status, nil
}

func TestServerClient_GetStatusRoundTrip(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "control.sock")
	impl := &testService{status: GetStatusResponse{NodeID: "node-1", Address: "0xabc", Role: "executor"}}

	srv, err := NewServer(socketPath, impl)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go srv.Serve()
	defer srv.GracefulStop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, socketPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	resp, err := client.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if resp.NodeID != "node-1" || resp.Role != "executor" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestServerClient_UnimplementedMethodReturnsError(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "control.sock")
	impl := &testService{}

	srv, err := NewServer(socketPath, impl)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go srv.Serve()
	defer srv.GracefulStop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, socketPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if _, err := client.ListExecutors(ctx); err == nil {
		t.Fatal("expected an error calling an unimplemented method")
	}
}
