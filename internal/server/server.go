// Package server exposes a graph over Arrow Flight.
//
// DoPut ingests edges (EdgeSchema). DoGet streams a node's neighbors or a
// seeded random sample of them (NeighborSchema), selected by a JSON Ticket.
// DoAction answers degree, num_nodes, stats and segments queries with JSON
// bodies.
package server

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	bgerrors "github.com/23skdu/bigraph/internal/errors"
	"github.com/23skdu/bigraph/internal/graph"
	"github.com/23skdu/bigraph/internal/metrics"
)

// Action types served by DoAction.
const (
	ActionDegree   = "degree"
	ActionNumNodes = "num_nodes"
	ActionStats    = "stats"
	ActionSegments = "segments"
)

var actionTypes = []*flight.ActionType{
	{Type: ActionDegree, Description: "Degree of a node: {\"side\":\"left\",\"node\":1}"},
	{Type: ActionNumNodes, Description: "Distinct live nodes on a side: {\"side\":\"right\"}"},
	{Type: ActionStats, Description: "Graph summary"},
	{Type: ActionSegments, Description: "Live segments, oldest first"},
}

// Config tunes the Flight endpoints.
type Config struct {
	MinChunkRows  int `envconfig:"FLIGHT_MIN_CHUNK_ROWS" default:"256"`
	MaxChunkRows  int `envconfig:"FLIGHT_MAX_CHUNK_ROWS" default:"65536"`
	MaxSampleSize int `envconfig:"FLIGHT_MAX_SAMPLE_SIZE" default:"1000000"`
}

// DefaultConfig returns the default endpoint configuration.
func DefaultConfig() Config {
	return Config{
		MinChunkRows:  256,
		MaxChunkRows:  65536,
		MaxSampleSize: 1_000_000,
	}
}

// PutAck is sent after each ingested DoPut record.
type PutAck struct {
	Accepted int64 `json:"accepted"`
}

// GraphServer serves one graph over Flight. Any number of DoPut streams may
// run concurrently; their record batches are applied one at a time.
type GraphServer struct {
	flight.BaseFlightServer

	graph  *graph.Graph
	cfg    Config
	mem    memory.Allocator
	logger zerolog.Logger

	writeMu sync.Mutex
}

// NewGraphServer creates a server for g.
func NewGraphServer(g *graph.Graph, cfg Config, logger zerolog.Logger) *GraphServer {
	if cfg.MaxSampleSize <= 0 {
		cfg.MaxSampleSize = DefaultConfig().MaxSampleSize
	}
	return &GraphServer{
		graph:  g,
		cfg:    cfg,
		mem:    memory.NewGoAllocator(),
		logger: logger,
	}
}

// Register installs the server on a gRPC server.
func (s *GraphServer) Register(reg *grpc.Server) {
	flight.RegisterFlightServiceServer(reg, s)
}

// finish converts err to a gRPC status and records the call.
func (s *GraphServer) finish(method string, start time.Time, err error) error {
	err = ToGRPCStatus(err)
	code := status.Code(err)
	metrics.FlightOperationsTotal.WithLabelValues(method, code.String()).Inc()
	metrics.FlightDurationSeconds.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("method", method).
			Str("code", code.String()).
			Msg("Flight call failed")
	}
	return err
}

// DoPut ingests edge records. An edge the codec cannot represent aborts the
// stream; edges before it are kept.
func (s *GraphServer) DoPut(stream flight.FlightService_DoPutServer) (err error) {
	start := time.Now()
	defer func() { err = s.finish("DoPut", start, err) }()

	r, err := flight.NewRecordReader(stream, ipc.WithAllocator(s.mem))
	if err != nil {
		return bgerrors.WrapTransportError(err, "do_put", "failed to open record reader")
	}
	defer r.Release()

	var accepted int64
	for r.Next() {
		n, err := s.ingest(r)
		accepted += n
		metrics.FlightRowsTotal.WithLabelValues("DoPut").Add(float64(n))
		if err != nil {
			return err
		}

		ack, err := json.Marshal(PutAck{Accepted: accepted})
		if err != nil {
			return err
		}
		if err := stream.Send(&flight.PutResult{AppMetadata: ack}); err != nil {
			return err
		}
	}
	if err := r.Err(); err != nil {
		return bgerrors.WrapTransportError(err, "do_put", "stream error")
	}

	s.logger.Debug().Int64("edges", accepted).Msg("DoPut completed")
	return nil
}

func (s *GraphServer) ingest(r *flight.Reader) (int64, error) {
	rec := r.Record()
	cols, err := bindEdgeColumns(rec)
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rows := int(rec.NumRows())
	for i := 0; i < rows; i++ {
		left, right, t, err := cols.edge(i)
		if err != nil {
			return int64(i), err
		}
		if err := s.graph.AddEdge(left, right, t); err != nil {
			return int64(i), fmt.Errorf("row %d: %w", i, err)
		}
	}
	return int64(rows), nil
}

// DoGet streams the neighbors selected by a Ticket.
func (s *GraphServer) DoGet(tkt *flight.Ticket, stream flight.FlightService_DoGetServer) (err error) {
	start := time.Now()
	defer func() { err = s.finish("DoGet", start, err) }()

	t, side, err := ParseTicket(tkt.GetTicket())
	if err != nil {
		return err
	}
	if t.Mode == ModeSample && t.K > s.cfg.MaxSampleSize {
		return bgerrors.NewValidationError("do_get",
			fmt.Sprintf("k %d exceeds the sample limit %d", t.K, s.cfg.MaxSampleSize))
	}

	w := flight.NewRecordWriter(stream, ipc.WithSchema(NeighborSchema), ipc.WithAllocator(s.mem))
	defer w.Close()

	nb := newNeighborBuilder(s.mem)
	defer nb.Release()

	ctx := stream.Context()
	chunks := NewAdaptiveChunkStrategy(s.cfg.MinChunkRows, s.cfg.MaxChunkRows, 2.0)
	target := chunks.NextChunkSize()
	var sent int64

	flush := func() error {
		if nb.Rows() == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := nb.NewRecord()
		defer rec.Release()
		sent += rec.NumRows()
		return w.Write(rec)
	}
	emit := func(n graph.NodeID, et graph.EdgeType) error {
		nb.Append(n, et)
		if nb.Rows() < target {
			return nil
		}
		target = chunks.NextChunkSize()
		return flush()
	}

	node := graph.NodeID(t.Node)
	switch t.Mode {
	case ModeSample:
		rng := rand.New(rand.NewSource(t.Seed))
		for _, e := range s.graph.RandomEdges(side, node, t.K, rng) {
			if err := emit(e.Neighbor, e.Type); err != nil {
				return err
			}
		}
	default:
		n := 0
		for nbr, et := range s.graph.Edges(side, node) {
			if t.Limit > 0 && n == t.Limit {
				break
			}
			n++
			if err := emit(nbr, et); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	metrics.FlightRowsTotal.WithLabelValues("DoGet").Add(float64(sent))
	s.logger.Debug().
		Str("side", side.String()).
		Int64("node", t.Node).
		Str("mode", t.Mode).
		Int64("rows", sent).
		Msg("DoGet completed")
	return nil
}

// ListActions lists the DoAction types.
func (s *GraphServer) ListActions(_ *flight.Empty, stream flight.FlightService_ListActionsServer) error {
	for _, at := range actionTypes {
		if err := stream.Send(at); err != nil {
			return err
		}
	}
	return nil
}

// DoAction answers the JSON queries listed by ListActions.
func (s *GraphServer) DoAction(action *flight.Action, stream flight.FlightService_DoActionServer) (err error) {
	start := time.Now()
	defer func() { err = s.finish("DoAction", start, err) }()

	if action == nil {
		return bgerrors.NewValidationError("do_action", "action is required")
	}

	var reply any
	switch action.Type {
	case ActionDegree:
		req, side, err := parseNodeRequest(action.Body)
		if err != nil {
			return err
		}
		reply = DegreeResult{
			Side:   side.String(),
			Node:   req.Node,
			Degree: s.graph.Degree(side, graph.NodeID(req.Node)),
		}
	case ActionNumNodes:
		_, side, err := parseNodeRequest(action.Body)
		if err != nil {
			return err
		}
		reply = map[string]int{"num_nodes": s.graph.NumNodes(side)}
	case ActionStats:
		reply = s.graph.Stats()
	case ActionSegments:
		reply = s.graph.Segments()
	default:
		return bgerrors.NewValidationError("do_action",
			fmt.Sprintf("unknown action: %s", action.Type))
	}

	body, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return stream.Send(&flight.Result{Body: body})
}

func parseNodeRequest(body []byte) (NodeRequest, graph.Side, error) {
	var req NodeRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return req, 0, bgerrors.WrapValidationError(err, "do_action", "invalid JSON body")
		}
	}
	side, err := ParseSide(req.Side)
	return req, side, err
}
