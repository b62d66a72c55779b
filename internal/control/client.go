package control

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a thin typed wrapper over a gRPC connection to a control-plane
// Server, dialed over a Unix Domain Socket.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the control-plane server listening on socketPath.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix:"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
		grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("control: dial %s: %w", socketPath, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) GetStatus(ctx context.Context) (*GetStatusResponse, error) {
	out := new(GetStatusResponse)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/GetStatus", new(GetStatusRequest), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListExecutors(ctx context.Context) (*ListExecutorsResponse, error) {
	out := new(ListExecutorsResponse)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/ListExecutors", new(ListExecutorsRequest), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListModels(ctx context.Context, req *ListModelsRequest) (*ListModelsResponse, error) {
	out := new(ListModelsResponse)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/ListModels", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetUsageQueueDepth(ctx context.Context) (*GetUsageQueueDepthResponse, error) {
	out := new(GetUsageQueueDepthResponse)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/GetUsageQueueDepth", new(GetUsageQueueDepthRequest), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ForceAnnounce(ctx context.Context) (*ForceAnnounceResponse, error) {
	out := new(ForceAnnounceResponse)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/ForceAnnounce", new(ForceAnnounceRequest), out); err != nil {
		return nil, err
	}
	return out, nil
}
