package server

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	bgerrors "github.com/23skdu/bigraph/internal/errors"
	"github.com/23skdu/bigraph/internal/graph"
)

// Column names shared by the server and the client.
const (
	ColLeft     = "left"
	ColRight    = "right"
	ColType     = "type"
	ColNeighbor = "neighbor"
)

// EdgeSchema is the DoPut ingest schema: one row per edge.
var EdgeSchema = arrow.NewSchema([]arrow.Field{
	{Name: ColLeft, Type: arrow.PrimitiveTypes.Int64},
	{Name: ColRight, Type: arrow.PrimitiveTypes.Int64},
	{Name: ColType, Type: arrow.PrimitiveTypes.Uint8},
}, nil)

// NeighborSchema is the DoGet result schema: one row per neighbor.
var NeighborSchema = arrow.NewSchema([]arrow.Field{
	{Name: ColNeighbor, Type: arrow.PrimitiveTypes.Int64},
	{Name: ColType, Type: arrow.PrimitiveTypes.Uint8},
}, nil)

// edgeColumns holds typed views of an ingest record. The type column is
// optional; edges without it are stored with type 0.
type edgeColumns struct {
	left  *array.Int64
	right *array.Int64
	typ   *array.Uint8
}

func bindEdgeColumns(rec arrow.Record) (edgeColumns, error) {
	var cols edgeColumns
	schema := rec.Schema()

	col := func(name string) (arrow.Array, bool) {
		idx := schema.FieldIndices(name)
		if len(idx) == 0 {
			return nil, false
		}
		return rec.Column(idx[0]), true
	}

	var ok bool
	arr, found := col(ColLeft)
	if cols.left, ok = arr.(*array.Int64); !found || !ok {
		return cols, bgerrors.NewValidationError("do_put",
			fmt.Sprintf("column %q must be int64", ColLeft))
	}
	arr, found = col(ColRight)
	if cols.right, ok = arr.(*array.Int64); !found || !ok {
		return cols, bgerrors.NewValidationError("do_put",
			fmt.Sprintf("column %q must be int64", ColRight))
	}
	if arr, found = col(ColType); found {
		if cols.typ, ok = arr.(*array.Uint8); !ok {
			return cols, bgerrors.NewValidationError("do_put",
				fmt.Sprintf("column %q must be uint8", ColType))
		}
	}
	return cols, nil
}

func (c edgeColumns) edge(i int) (left, right graph.NodeID, t graph.EdgeType, err error) {
	if c.left.IsNull(i) || c.right.IsNull(i) {
		return 0, 0, 0, bgerrors.NewValidationError("do_put",
			fmt.Sprintf("row %d: node ids must not be null", i))
	}
	if c.typ != nil && c.typ.IsValid(i) {
		t = graph.EdgeType(c.typ.Value(i))
	}
	return graph.NodeID(c.left.Value(i)), graph.NodeID(c.right.Value(i)), t, nil
}

// neighborBuilder accumulates neighbor rows into records.
type neighborBuilder struct {
	b        *array.RecordBuilder
	neighbor *array.Int64Builder
	typ      *array.Uint8Builder
	rows     int
}

func newNeighborBuilder(mem memory.Allocator) *neighborBuilder {
	b := array.NewRecordBuilder(mem, NeighborSchema)
	return &neighborBuilder{
		b:        b,
		neighbor: b.Field(0).(*array.Int64Builder),
		typ:      b.Field(1).(*array.Uint8Builder),
	}
}

func (nb *neighborBuilder) Append(n graph.NodeID, t graph.EdgeType) {
	nb.neighbor.Append(int64(n))
	nb.typ.Append(uint8(t))
	nb.rows++
}

func (nb *neighborBuilder) Rows() int { return nb.rows }

// NewRecord returns the accumulated rows and resets the builder.
func (nb *neighborBuilder) NewRecord() arrow.Record {
	nb.rows = 0
	return nb.b.NewRecord()
}

func (nb *neighborBuilder) Release() { nb.b.Release() }
