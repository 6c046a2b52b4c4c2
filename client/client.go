// Package client is a Go client for the bigraph Flight service.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/23skdu/bigraph/internal/breaker"
	"github.com/23skdu/bigraph/internal/graph"
	"github.com/23skdu/bigraph/internal/server"
)

// Edge is one edge to ingest.
type Edge struct {
	Left  int64
	Right int64
	Type  uint8
}

// Neighbor is one row of a neighbor or sample query.
type Neighbor struct {
	ID   int64
	Type uint8
}

// Sides accepted by the query methods.
const (
	Left  = "left"
	Right = "right"
)

// GraphClient talks to a bigraph server. It is safe for concurrent use.
type GraphClient struct {
	mu     sync.RWMutex
	client flight.Client
	mem    memory.Allocator
	cb     *breaker.Breaker

	batchSize   int
	maxAttempts int
	backoff     time.Duration
}

// NewGraphClient dials addr. Extra dial options are appended to the
// defaults (insecure transport, 100MB messages).
func NewGraphClient(addr string, opts ...grpc.DialOption) (*GraphClient, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(1024*1024*100), // 100MB
			grpc.MaxCallSendMsgSize(1024*1024*100),
		),
	}, opts...)

	c, err := flight.NewClientWithMiddleware(addr, nil, nil, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	cb := breaker.New(breaker.Settings{
		Name:        addr,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(c breaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		IsFailure:   unavailable,
	})
	return &GraphClient{
		client:      c,
		mem:         memory.NewGoAllocator(),
		cb:          cb,
		batchSize:   4096,
		maxAttempts: 3,
		backoff:     50 * time.Millisecond,
	}, nil
}

// Close closes the connection.
func (c *GraphClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

func (c *GraphClient) flightClient() (flight.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, ErrClosed
	}
	return c.client, nil
}

// withRetry runs an idempotent call, retrying throttled or unavailable
// attempts with linear backoff.
func (c *GraphClient) withRetry(ctx context.Context, call func(flight.Client) error) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var fc flight.Client
		if fc, err = c.flightClient(); err != nil {
			return err
		}
		err = c.cb.Do(func() error { return call(fc) })
		if err == nil || !retryable(err) || attempt == c.maxAttempts {
			return err
		}
		// A deadline hit while backing off reports the last server status.
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}
	return err
}

// AddEdges sends edges in record batches over one DoPut stream and returns
// the number the server accepted. Ingest is not retried: on error the
// edges before the failing one are already stored.
func (c *GraphClient) AddEdges(ctx context.Context, edges []Edge) (int64, error) {
	fc, err := c.flightClient()
	if err != nil {
		return 0, err
	}
	var accepted int64
	err = c.cb.Do(func() error {
		accepted, err = c.addEdges(ctx, fc, edges)
		return err
	})
	return accepted, err
}

func (c *GraphClient) addEdges(ctx context.Context, fc flight.Client, edges []Edge) (int64, error) {
	stream, err := fc.DoPut(ctx)
	if err != nil {
		return 0, err
	}

	w := flight.NewRecordWriter(stream, ipc.WithSchema(server.EdgeSchema), ipc.WithAllocator(c.mem))
	w.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{"edges"},
	})

	b := array.NewRecordBuilder(c.mem, server.EdgeSchema)
	defer b.Release()
	left := b.Field(0).(*array.Int64Builder)
	right := b.Field(1).(*array.Int64Builder)
	typ := b.Field(2).(*array.Uint8Builder)

	for start := 0; start < len(edges); start += c.batchSize {
		end := min(start+c.batchSize, len(edges))
		for _, e := range edges[start:end] {
			left.Append(e.Left)
			right.Append(e.Right)
			typ.Append(e.Type)
		}
		rec := b.NewRecord()
		err := w.Write(rec)
		rec.Release()
		if err != nil {
			// The server closed the stream; its status is in Recv below.
			break
		}
	}
	werr := w.Close()
	if err := stream.CloseSend(); err != nil && werr == nil {
		werr = err
	}

	var accepted int64
	for {
		res, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return accepted, err
		}
		var ack server.PutAck
		if err := json.Unmarshal(res.GetAppMetadata(), &ack); err == nil {
			accepted = ack.Accepted
		}
	}
	if werr != nil && !errors.Is(werr, io.EOF) {
		return accepted, werr
	}
	return accepted, nil
}

// Neighbors returns every neighbor of node on side, newest segment first.
func (c *GraphClient) Neighbors(ctx context.Context, side string, node int64) ([]Neighbor, error) {
	return c.get(ctx, server.Ticket{Side: side, Node: node, Mode: server.ModeNeighbors})
}

// RandomNeighbors draws k neighbors of node with replacement. The same seed
// against the same graph state returns the same samples.
func (c *GraphClient) RandomNeighbors(ctx context.Context, side string, node int64, k int, seed int64) ([]Neighbor, error) {
	return c.get(ctx, server.Ticket{Side: side, Node: node, Mode: server.ModeSample, K: k, Seed: seed})
}

func (c *GraphClient) get(ctx context.Context, t server.Ticket) ([]Neighbor, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}

	var out []Neighbor
	err = c.withRetry(ctx, func(fc flight.Client) error {
		out = out[:0]
		stream, err := fc.DoGet(ctx, &flight.Ticket{Ticket: body})
		if err != nil {
			return err
		}
		r, err := flight.NewRecordReader(stream, ipc.WithAllocator(c.mem))
		if err != nil {
			return err
		}
		defer r.Release()
		for r.Next() {
			out = appendNeighbors(out, r.Record())
		}
		return r.Err()
	})
	return out, err
}

func appendNeighbors(dst []Neighbor, rec arrow.Record) []Neighbor {
	ids := rec.Column(0).(*array.Int64)
	types := rec.Column(1).(*array.Uint8)
	for i := 0; i < int(rec.NumRows()); i++ {
		dst = append(dst, Neighbor{ID: ids.Value(i), Type: types.Value(i)})
	}
	return dst
}

func (c *GraphClient) action(ctx context.Context, typ string, req, reply any) error {
	var body []byte
	if req != nil {
		var err error
		if body, err = json.Marshal(req); err != nil {
			return err
		}
	}
	return c.withRetry(ctx, func(fc flight.Client) error {
		stream, err := fc.DoAction(ctx, &flight.Action{Type: typ, Body: body})
		if err != nil {
			return err
		}
		res, err := stream.Recv()
		if err != nil {
			return err
		}
		return json.Unmarshal(res.GetBody(), reply)
	})
}

// Degree returns node's degree on side.
func (c *GraphClient) Degree(ctx context.Context, side string, node int64) (int, error) {
	var res server.DegreeResult
	err := c.action(ctx, server.ActionDegree, server.NodeRequest{Side: side, Node: node}, &res)
	return res.Degree, err
}

// NumNodes returns the number of distinct live nodes on side.
func (c *GraphClient) NumNodes(ctx context.Context, side string) (int, error) {
	var res map[string]int
	err := c.action(ctx, server.ActionNumNodes, server.NodeRequest{Side: side}, &res)
	return res["num_nodes"], err
}

// Stats returns the server's graph summary.
func (c *GraphClient) Stats(ctx context.Context) (graph.Stats, error) {
	var st graph.Stats
	err := c.action(ctx, server.ActionStats, nil, &st)
	return st, err
}

// Segments returns the live segments, oldest first.
func (c *GraphClient) Segments(ctx context.Context) ([]graph.SegmentInfo, error) {
	var segs []graph.SegmentInfo
	err := c.action(ctx, server.ActionSegments, nil, &segs)
	return segs, err
}
