// Package arrowtest provides small helpers for building and inspecting
// Arrow records in tests.
package arrowtest

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Row is a single test row keyed by field name. A nil value appends null.
type Row map[string]any

// Rows is an ordered set of test rows convertible into one record.
type Rows []Row

// Record builds a record matching schema from the rows. Supported value
// types are int64, float64, and string; missing keys and nil values become
// nulls. Record panics on unsupported field types or value mismatches, as a
// test fixture should.
func (rows Rows) Record(mem memory.Allocator, schema *arrow.Schema) arrow.Record {
	rb := array.NewRecordBuilder(mem, schema)
	defer rb.Release()

	for i, field := range schema.Fields() {
		for _, row := range rows {
			val, ok := row[field.Name]
			if !ok || val == nil {
				rb.Field(i).AppendNull()
				continue
			}
			switch b := rb.Field(i).(type) {
			case *array.Int64Builder:
				b.Append(val.(int64))
			case *array.Float64Builder:
				b.Append(val.(float64))
			case *array.StringBuilder:
				b.Append(val.(string))
			default:
				panic(fmt.Sprintf("arrowtest: unsupported builder %T for field %q", b, field.Name))
			}
		}
	}

	return rb.NewRecord()
}

// RecordRows converts a record back into rows for assertions. Nulls become
// nil values.
func RecordRows(rec arrow.Record) (Rows, error) {
	rows := make(Rows, rec.NumRows())
	for i := range rows {
		rows[i] = make(Row, rec.NumCols())
	}

	for c := 0; c < int(rec.NumCols()); c++ {
		name := rec.Schema().Field(c).Name
		col := rec.Column(c)
		for r := 0; r < col.Len(); r++ {
			if col.IsNull(r) {
				rows[r][name] = nil
				continue
			}
			switch arr := col.(type) {
			case *array.Int64:
				rows[r][name] = arr.Value(r)
			case *array.Float64:
				rows[r][name] = arr.Value(r)
			case *array.String:
				rows[r][name] = arr.Value(r)
			default:
				return nil, fmt.Errorf("arrowtest: unsupported array %T for field %q", arr, name)
			}
		}
	}
	return rows, nil
}

// Int64Range builds rows with a single int64 field holding from..to
// (exclusive).
func Int64Range(name string, from, to int64) Rows {
	rows := make(Rows, 0, to-from)
	for v := from; v < to; v++ {
		rows = append(rows, Row{name: v})
	}
	return rows
}
