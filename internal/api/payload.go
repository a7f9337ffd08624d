package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"statsuite/adapters/excel"
	"statsuite/domain/dataset"
	"statsuite/domain/method"
)

// DatasetPayload carries a dataset inline, either as typed columns or as CSV text
type DatasetPayload struct {
	Name    string              `json:"name"`
	Columns []ColumnPayload     `json:"columns,omitempty"`
	CSV     string              `json:"csv,omitempty"`
	Roles   dataset.RoleMapping `json:"roles,omitempty"`
}

// ColumnPayload is one column. An empty Type infers it from the values.
type ColumnPayload struct {
	Name   string        `json:"name"`
	Type   string        `json:"type,omitempty"`
	Values []interface{} `json:"values"`
}

// AnalyzeRequest is the body of POST /v1/analyze
type AnalyzeRequest struct {
	Dataset      DatasetPayload           `json:"dataset"`
	Method       string                   `json:"method,omitempty"`
	Kind         string                   `json:"kind,omitempty"`
	Metric       string                   `json:"metric,omitempty"`
	Params       method.Params            `json:"params,omitempty"`
	MethodParams map[string]method.Params `json:"method_params,omitempty"`
	Average      bool                     `json:"average,omitempty"`
}

// ClassifyRequest is the body of POST /v1/classify
type ClassifyRequest struct {
	Dataset DatasetPayload `json:"dataset"`
	Kind    string         `json:"kind,omitempty"`
}

// Build converts the payload into a dataset with its roles applied
func (p DatasetPayload) Build() (*dataset.Dataset, error) {
	name := p.Name
	if name == "" {
		name = "request"
	}

	var ds *dataset.Dataset
	var err error
	switch {
	case p.CSV != "" && len(p.Columns) > 0:
		return nil, fmt.Errorf("dataset must set either csv or columns, not both")
	case p.CSV != "":
		ds, err = excel.ReadCSV(name, strings.NewReader(p.CSV))
	case len(p.Columns) > 0:
		cols := make([]*dataset.Column, len(p.Columns))
		for i, c := range p.Columns {
			if cols[i], err = c.build(); err != nil {
				return nil, err
			}
		}
		ds, err = dataset.New(name, cols...)
	default:
		return nil, fmt.Errorf("dataset has no columns")
	}
	if err != nil {
		return nil, err
	}
	if p.Roles.IsZero() {
		return ds, nil
	}
	return ds.WithRoles(p.Roles)
}

func (c ColumnPayload) build() (*dataset.Column, error) {
	cells := make([]string, len(c.Values))
	for i, v := range c.Values {
		cells[i] = cell(v)
	}

	switch dataset.ColumnType(c.Type) {
	case "":
		return excel.InferColumn(c.Name, cells), nil
	case dataset.TypeNumeric:
		nums := make([]float64, len(cells))
		for i, s := range cells {
			v, ok := dataset.ParseNumber(s)
			if !ok {
				return nil, fmt.Errorf("column %q: value %q is not numeric", c.Name, s)
			}
			nums[i] = v
		}
		return dataset.NewNumericColumn(c.Name, nums), nil
	case dataset.TypeDatetime:
		times := make([]time.Time, len(cells))
		for i, s := range cells {
			if s == "" {
				continue
			}
			t, ok := excel.ParseTime(s)
			if !ok {
				return nil, fmt.Errorf("column %q: value %q is not a time", c.Name, s)
			}
			times[i] = t
		}
		return dataset.NewDatetimeColumn(c.Name, times), nil
	case dataset.TypeCategorical:
		return dataset.NewCategoricalColumn(c.Name, cells), nil
	}
	return nil, fmt.Errorf("column %q: unknown type %q", c.Name, c.Type)
}

// cell renders a decoded JSON value; null becomes the empty string
func cell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(x)
	}
}
