package stream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"k8s.io/klog/v2"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// DefaultMethod is the client-streaming RPC frames are sent on
const DefaultMethod = "/energy.consolidator.v1.TelemetryService/StreamTelemetry"

type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Options configures a GRPCSink
type Options struct {
	Addr   string
	Method string
	Token  string
	TLS    *tls.Config

	// DialOptions are appended after the defaults
	DialOptions []grpc.DialOption
}

// GRPCSink streams telemetry and decisions to a remote collector over one
// client stream. A broken stream is reopened once per send.
type GRPCSink struct {
	mu sync.Mutex

	opts   Options
	conn   *grpc.ClientConn
	stream grpc.ClientStream
}

// NewGRPCSink returns a sink that connects lazily on the first send
func NewGRPCSink(opts Options) (*GRPCSink, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("grpc sink requires an address")
	}
	if opts.Method == "" {
		opts.Method = DefaultMethod
	}
	return &GRPCSink{opts: opts}, nil
}

func (c *GRPCSink) Name() string {
	return "grpc:" + c.opts.Addr
}

func (c *GRPCSink) Publish(ctx context.Context, snapshot []models.Telemetry) error {
	if len(snapshot) == 0 {
		return nil
	}
	return c.send(ctx, NewTelemetryFrame(snapshot))
}

func (c *GRPCSink) RecordConsolidation(ctx context.Context, r models.ConsolidationResult) error {
	return c.send(ctx, NewConsolidationFrame(r))
}

func (c *GRPCSink) RecordPlacement(ctx context.Context, d models.PlacementDecision) error {
	return c.send(ctx, NewPlacementFrame(d))
}

// Close half-closes the stream, waits for the collector's ack and closes the connection
func (c *GRPCSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.stream != nil {
		if err := c.stream.CloseSend(); err != nil {
			errs = append(errs, err)
		}
		var ack Ack
		if err := c.stream.RecvMsg(&ack); err != nil && !errors.Is(err, io.EOF) {
			errs = append(errs, fmt.Errorf("await ack: %w", err))
		}
		c.stream = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		c.conn = nil
	}
	return errors.Join(errs...)
}

func (c *GRPCSink) send(ctx context.Context, frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnLocked(); err != nil {
		return err
	}
	if c.stream == nil {
		if err := c.openStreamLocked(ctx); err != nil {
			return err
		}
	}
	if err := c.stream.SendMsg(&frame); err != nil {
		klog.InfoS("gRPC send failed, reopening stream", "addr", c.opts.Addr, "kind", frame.Kind, "err", err)
		c.stream = nil
		if err2 := c.openStreamLocked(ctx); err2 != nil {
			return fmt.Errorf("reopen stream: %w", err2)
		}
		if err2 := c.stream.SendMsg(&frame); err2 != nil {
			return fmt.Errorf("send %s frame: %w", frame.Kind, err2)
		}
	}
	return nil
}

func (c *GRPCSink) ensureConnLocked() error {
	if c.conn != nil {
		return nil
	}

	var creds credentials.TransportCredentials
	if c.opts.TLS != nil {
		creds = credentials.NewTLS(c.opts.TLS)
	} else {
		creds = insecure.NewCredentials()
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
	}
	dialOpts = append(dialOpts, c.opts.DialOptions...)

	conn, err := grpc.NewClient(c.opts.Addr, dialOpts...)
	if err != nil {
		return fmt.Errorf("grpc dial %s: %w", c.opts.Addr, err)
	}
	c.conn = conn
	klog.InfoS("gRPC telemetry sink connected", "addr", c.opts.Addr)
	return nil
}

// openStreamLocked detaches the stream from the caller's cancellation so
// that it outlives a single tick.
func (c *GRPCSink) openStreamLocked(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("grpc conn is nil")
	}

	streamCtx := context.WithoutCancel(ctx)
	if c.opts.Token != "" {
		streamCtx = metadata.AppendToOutgoingContext(streamCtx, "authorization", "Bearer "+c.opts.Token)
	}

	s, err := c.conn.NewStream(streamCtx, &grpc.StreamDesc{ClientStreams: true}, c.opts.Method)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	c.stream = s
	return nil
}
