package jobrpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/AltairaLabs/diagram-studio/internal/orchestrator"
)

// DefaultCallTimeout bounds one Dispatch RPC. The job itself is not bounded
// by it.
const DefaultCallTimeout = 10 * time.Second

// Client is an orchestrator.Trigger that sends jobs to a remote worker.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

var _ orchestrator.Trigger = (*Client)(nil)

// Dial creates a client for the worker at addr. Extra dial options are
// appended after the default insecure transport credentials.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client: %w", err)
	}
	return &Client{conn: conn, timeout: DefaultCallTimeout}, nil
}

// Trigger sends the job and returns once the worker accepted it.
func (c *Client) Trigger(ctx context.Context, job orchestrator.Job) error {
	req, err := EncodeEvent(job.ToEvent())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.conn.Invoke(ctx, DispatchMethod, req, &emptypb.Empty{}); err != nil {
		if status.Code(err) == codes.InvalidArgument {
			return fmt.Errorf("%w: %s", orchestrator.ErrInvalidJob, status.Convert(err).Message())
		}
		return fmt.Errorf("worker dispatch: %w", err)
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
