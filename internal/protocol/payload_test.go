package protocol

import (
	"encoding/json"
	"reflect"
	"testing"

	apperrors "github.com/livedash/host/internal/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		value   Value
		kind    PayloadKind
		x, y    []float64
		samples []Sample
	}{
		{
			name:    "scalar is one sample",
			value:   Scalar(3.5),
			kind:    PayloadSample,
			samples: []Sample{{3.5}},
		},
		{
			name:  "tuple of two sequences is a series",
			value: Series([]float64{1, 2, 3}, []float64{4, 5, 6}),
			kind:  PayloadSeries,
			x:     []float64{1, 2, 3},
			y:     []float64{4, 5, 6},
		},
		{
			name:  "series lengths may differ",
			value: Series([]float64{1, 2, 3}, []float64{4}),
			kind:  PayloadSeries,
			x:     []float64{1, 2, 3},
			y:     []float64{4},
		},
		{
			name:    "tuple of two scalars is one sample",
			value:   Tuple(Scalar(1), Scalar(2)),
			kind:    PayloadSample,
			samples: []Sample{{1, 2}},
		},
		{
			name:    "tuple of three scalars is one sample",
			value:   Tuple(Scalar(1), Scalar(2), Scalar(3)),
			kind:    PayloadSample,
			samples: []Sample{{1, 2, 3}},
		},
		{
			name:  "list of pairs is a series",
			value: Points([][2]float64{{0, 10}, {1, 11}, {2, 12}}),
			kind:  PayloadSeries,
			x:     []float64{0, 1, 2},
			y:     []float64{10, 11, 12},
		},
		{
			name:  "list of 2-element lists is a series",
			value: List(List(Scalar(0), Scalar(1)), List(Scalar(2), Scalar(3))),
			kind:  PayloadSeries,
			x:     []float64{0, 2},
			y:     []float64{1, 3},
		},
		{
			name:    "list of scalars is a batch",
			value:   Samples(1, 2, 3),
			kind:    PayloadBatch,
			samples: []Sample{{1}, {2}, {3}},
		},
		{
			name:    "two scalars in a list is a batch, not a pair",
			value:   Samples(7, 8),
			kind:    PayloadBatch,
			samples: []Sample{{7}, {8}},
		},
		{
			name:    "mixed widths are a batch",
			value:   List(Scalar(1), Tuple(Scalar(2), Scalar(3), Scalar(4))),
			kind:    PayloadBatch,
			samples: []Sample{{1}, {2, 3, 4}},
		},
		{
			name:    "empty list is an empty batch",
			value:   List(),
			kind:    PayloadBatch,
			samples: []Sample{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Classify(tt.value)
			if err != nil {
				t.Fatalf("Classify() error: %v", err)
			}
			if p.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", p.Kind, tt.kind)
			}
			if tt.kind == PayloadSeries {
				if !reflect.DeepEqual(p.X, tt.x) || !reflect.DeepEqual(p.Y, tt.y) {
					t.Errorf("series = (%v, %v), want (%v, %v)", p.X, p.Y, tt.x, tt.y)
				}
				return
			}
			if !reflect.DeepEqual(p.Samples, tt.samples) {
				t.Errorf("Samples = %v, want %v", p.Samples, tt.samples)
			}
		})
	}
}

func TestClassify_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		value Value
	}{
		{"null", Value{}},
		{"empty tuple", Tuple()},
		{"nested series element", Tuple(List(List(Scalar(1))), List(Scalar(2)))},
		{"tuple holding a list and a scalar", Tuple(List(Scalar(1)), Scalar(2), Scalar(3))},
		{"batch with nested sample", List(Scalar(1), List(List(Scalar(2))))},
		{"batch with empty sample", List(Scalar(1), List())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Classify(tt.value)
			if err == nil {
				t.Fatal("Classify() expected error")
			}
			if !apperrors.IsCode(err, apperrors.CodeProtocolInvalidPayload) {
				t.Errorf("code = %q, want %q", apperrors.GetCode(err), apperrors.CodeProtocolInvalidPayload)
			}
		})
	}
}

func TestValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input string
		kind  PayloadKind
		n     int
	}{
		{`5`, PayloadSample, 1},
		{`[1, 2, 3]`, PayloadBatch, 3},
		{`{"tuple": [1, 2]}`, PayloadSample, 1},
		{`{"tuple": [[1, 2, 3], [4, 5, 6]]}`, PayloadSeries, 3},
		{`{"x": [1, 2], "y": [3, 4]}`, PayloadSeries, 2},
		{`[[0, 1], [1, 2]]`, PayloadSeries, 2},
		{`[{"tuple": [0, 1]}, {"tuple": [1, 2]}]`, PayloadSeries, 2},
		{`[1, {"tuple": [2, 3, 4]}]`, PayloadBatch, 2},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var v Value
			if err := json.Unmarshal([]byte(tt.input), &v); err != nil {
				t.Fatalf("Unmarshal() error: %v", err)
			}
			p, err := Classify(v)
			if err != nil {
				t.Fatalf("Classify() error: %v", err)
			}
			if p.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", p.Kind, tt.kind)
			}
			if p.Len() != tt.n {
				t.Errorf("Len() = %d, want %d", p.Len(), tt.n)
			}
		})
	}
}

func TestValue_UnmarshalJSON_Rejects(t *testing.T) {
	inputs := []string{
		`"text"`,
		`true`,
		`[1, null]`,
		`{"tuple": 5}`,
		`{"a": 1}`,
		`[1, "two"]`,
	}
	for _, input := range inputs {
		var v Value
		if err := json.Unmarshal([]byte(input), &v); err == nil {
			t.Errorf("Unmarshal(%s) expected error", input)
		}
	}
}

func TestValue_MarshalJSON(t *testing.T) {
	tests := []struct {
		value Value
		want  string
	}{
		{Scalar(1.5), `1.5`},
		{Samples(1, 2), `[1,2]`},
		{Tuple(Scalar(1), Scalar(2)), `{"tuple":[1,2]}`},
		{Series([]float64{1}, []float64{2}), `{"tuple":[[1],[2]]}`},
		{List(), `[]`},
	}
	for _, tt := range tests {
		got, err := json.Marshal(tt.value)
		if err != nil {
			t.Fatalf("Marshal() error: %v", err)
		}
		if string(got) != tt.want {
			t.Errorf("Marshal() = %s, want %s", got, tt.want)
		}
	}
}
