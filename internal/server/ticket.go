package server

import (
	"encoding/json"
	"fmt"
	"strings"

	bgerrors "github.com/23skdu/bigraph/internal/errors"
	"github.com/23skdu/bigraph/internal/graph"
)

// Ticket modes.
const (
	ModeNeighbors = "neighbors"
	ModeSample    = "sample"
)

// Ticket is the JSON body of a DoGet ticket.
//
//	{"side":"left","node":4}                               all neighbors
//	{"side":"right","node":11,"mode":"sample","k":8,"seed":1}  8 samples
type Ticket struct {
	Side string `json:"side"`
	Node int64  `json:"node"`
	Mode string `json:"mode,omitempty"`
	// K is the sample count in sample mode.
	K int `json:"k,omitempty"`
	// Seed seeds the sampler so that a ticket is reproducible.
	Seed int64 `json:"seed,omitempty"`
	// Limit caps the rows returned in neighbors mode; 0 means no cap.
	Limit int `json:"limit,omitempty"`
}

// ParseSide maps "left"/"right" to a graph side.
func ParseSide(s string) (graph.Side, error) {
	switch strings.ToLower(s) {
	case "", "left":
		return graph.Left, nil
	case "right":
		return graph.Right, nil
	default:
		return 0, bgerrors.NewValidationError("parse_side",
			fmt.Sprintf("unknown side %q", s))
	}
}

// ParseTicket decodes and validates a DoGet ticket.
func ParseTicket(b []byte) (Ticket, graph.Side, error) {
	var t Ticket
	if err := json.Unmarshal(b, &t); err != nil {
		return t, 0, bgerrors.WrapValidationError(err, "parse_ticket", "invalid ticket JSON")
	}
	side, err := ParseSide(t.Side)
	if err != nil {
		return t, 0, err
	}
	switch t.Mode {
	case "":
		t.Mode = ModeNeighbors
	case ModeNeighbors, ModeSample:
	default:
		return t, 0, bgerrors.NewValidationError("parse_ticket",
			fmt.Sprintf("unknown mode %q", t.Mode))
	}
	if t.K < 0 {
		return t, 0, bgerrors.NewValidationError("parse_ticket",
			fmt.Sprintf("k must be >= 0, got %d", t.K))
	}
	if t.Limit < 0 {
		return t, 0, bgerrors.NewValidationError("parse_ticket",
			fmt.Sprintf("limit must be >= 0, got %d", t.Limit))
	}
	return t, side, nil
}

// NodeRequest is the body of the degree and num_nodes actions.
type NodeRequest struct {
	Side string `json:"side"`
	Node int64  `json:"node"`
}

// DegreeResult is the degree action reply.
type DegreeResult struct {
	Side   string `json:"side"`
	Node   int64  `json:"node"`
	Degree int    `json:"degree"`
}
