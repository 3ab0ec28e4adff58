// Package artifactsink optionally streams a finished build's artifacts to
// a remote collector over gRPC, and wires up OpenTelemetry tracing for
// the driver's phase spans when an OTLP endpoint is configured. Both are
// off by default: a build with neither --artifact-sink-addr nor
// --otlp-endpoint set never dials out, matching the "local filesystem
// output" default.
package artifactsink

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const pushMethod = "/clrm.artifactsink.v1.ArtifactSink/Push"

// Client pushes artifact bytes to a remote collector.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr, instrumenting the connection with otelgrpc so
// each RPC carries the current trace context.
func Dial(ctx context.Context, addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("dialing artifact sink %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// chunkSize bounds how much of an artifact file is sent per message.
const chunkSize = 256 * 1024

// PushDirectory streams every regular file under dir as a sequence of
// BytesValue chunks over a single client-streaming RPC, acknowledged by
// one Empty response once the server has received everything.
func (c *Client) PushDirectory(ctx context.Context, dir string) error {
	stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "Push", ClientStreams: true}, pushMethod)
	if err != nil {
		return fmt.Errorf("opening artifact push stream: %w", err)
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		return sendFile(stream, path)
	})
	if err != nil {
		_ = stream.CloseSend()
		return fmt.Errorf("pushing artifacts from %s: %w", dir, err)
	}

	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("closing artifact push stream: %w", err)
	}
	var ack emptypb.Empty
	if err := stream.RecvMsg(&ack); err != nil && err != io.EOF {
		return fmt.Errorf("waiting for artifact sink acknowledgement: %w", err)
	}
	return nil
}

func sendFile(stream grpc.ClientStream, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if err := stream.SendMsg(wrapperspb.Bytes(buf[:n])); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// NewTracerProvider configures an OTLP/gRPC span exporter pointed at
// otlpEndpoint and installs it as the global tracer provider used by
// driver.Run's phase spans. Call the returned shutdown func before exit.
func NewTracerProvider(ctx context.Context, otlpEndpoint, serviceName string) (shutdown func(context.Context) error, err error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("building otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
