// Package response validates and renders the structured results produced
// by executed snippets.
package response

import (
	"fmt"
	"strconv"

	"github.com/fathomdata/fathom/pkg/datasource"
	"github.com/fathomdata/fathom/pkg/fault"
)

// Result type names a snippet may declare.
const (
	TypeDataFrame = "dataframe"
	TypeNumber    = "number"
	TypeString    = "string"
	TypePlot      = "plot"
)

// Response is a validated snippet result.
type Response struct {
	Type  string
	Value any
}

// ErrorResponse is the terminal answer when all recovery attempts are
// exhausted. It carries the last code that ran so the caller can inspect
// or report it.
type ErrorResponse struct {
	LastCodeExecuted string
	Error            string
}

// Parse validates the raw map a snippet returned. When expectedType is
// non-empty and the declared type differs, the failure is classified as
// a wrong output type so the recovery loop can pick the corrective
// prompt that addresses it.
func Parse(raw map[string]any, expectedType string) (*Response, error) {
	typeVal, ok := raw["type"]
	if !ok {
		return nil, fault.New(fault.KindExecution, `result is missing the "type" key`)
	}
	typ, ok := typeVal.(string)
	if !ok {
		return nil, fault.New(fault.KindExecution, `result "type" must be a string, got %T`, typeVal)
	}
	value, ok := raw["value"]
	if !ok {
		return nil, fault.New(fault.KindExecution, `result is missing the "value" key`)
	}

	if err := checkValue(typ, value); err != nil {
		return nil, err
	}

	if expectedType != "" && typ != expectedType {
		return nil, fault.New(fault.KindInvalidOutputType,
			"expected result of type %q, got %q", expectedType, typ)
	}

	return &Response{Type: typ, Value: value}, nil
}

func checkValue(typ string, value any) error {
	switch typ {
	case TypeDataFrame:
		if _, ok := value.(*datasource.QueryResult); !ok {
			return fault.New(fault.KindExecution,
				"dataframe result must be a query result, got %T", value)
		}
	case TypeNumber:
		if !isNumeric(value) {
			return fault.New(fault.KindExecution,
				"number result must be numeric, got %T", value)
		}
	case TypeString:
		if _, ok := value.(string); !ok {
			return fault.New(fault.KindExecution,
				"string result must be a string, got %T", value)
		}
	case TypePlot:
		path, ok := value.(string)
		if !ok || path == "" {
			return fault.New(fault.KindExecution,
				"plot result must be a non-empty file path, got %T", value)
		}
	default:
		return fault.New(fault.KindExecution, "unknown result type %q", typ)
	}
	return nil
}

func isNumeric(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	case string:
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	default:
		return false
	}
}

// String formats the response for display. Dataframes render as tables,
// everything else via Sprint.
func (r *Response) String() string {
	switch r.Type {
	case TypeDataFrame:
		if qr, ok := r.Value.(*datasource.QueryResult); ok {
			return RenderTable(qr)
		}
	case TypePlot:
		return fmt.Sprintf("chart saved to %v", r.Value)
	}
	return fmt.Sprint(r.Value)
}
