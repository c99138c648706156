package protocol

import (
	apperrors "github.com/livedash/host/internal/errors"
)

// PayloadKind is the classified shape of an update's data.
type PayloadKind uint8

const (
	// PayloadSeries is a full (xs, ys) snapshot. It always replaces the
	// displayed series, even in append mode.
	PayloadSeries PayloadKind = iota + 1

	// PayloadSample is one indexed sample (a scalar or a tuple of scalars).
	PayloadSample

	// PayloadBatch is zero or more indexed samples.
	PayloadBatch
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadSeries:
		return "series"
	case PayloadSample:
		return "sample"
	case PayloadBatch:
		return "batch"
	default:
		return "invalid"
	}
}

// Sample is one entry of an indexed buffer. A scalar sample has length 1.
type Sample []float64

// Payload is the closed union an update_line command carries.
// Series uses X and Y; Sample and Batch use Samples.
type Payload struct {
	Kind    PayloadKind
	X, Y    []float64
	Samples []Sample
}

// Len returns the number of samples a payload contributes to an indexed
// buffer, or the number of points of a series.
func (p Payload) Len() int {
	if p.Kind == PayloadSeries {
		return min(len(p.X), len(p.Y))
	}
	return len(p.Samples)
}

// Classify maps a wire value onto a Payload:
//
//   - a 2-tuple of two sequences is a Series (xs, ys);
//   - any other tuple of scalars, or a bare scalar, is one Sample;
//   - a non-empty list whose every element is a 2-element numeric sequence
//     is a Series built from (x, y) points;
//   - any other list is a Batch; each element is a scalar or a sequence
//     of scalars.
//
// Anything that is not numeric at the leaves is rejected.
func Classify(v Value) (Payload, error) {
	switch v.Kind() {
	case KindNull:
		return Payload{}, apperrors.InvalidPayload("missing data")

	case KindNumber:
		return Payload{Kind: PayloadSample, Samples: []Sample{{v.Float()}}}, nil

	case KindTuple:
		items := v.Items()
		if len(items) == 2 && items[0].IsSequence() && items[1].IsSequence() {
			xs, err := numbers(items[0])
			if err != nil {
				return Payload{}, err
			}
			ys, err := numbers(items[1])
			if err != nil {
				return Payload{}, err
			}
			return Payload{Kind: PayloadSeries, X: xs, Y: ys}, nil
		}
		s, err := numbers(v)
		if err != nil {
			return Payload{}, err
		}
		if len(s) == 0 {
			return Payload{}, apperrors.InvalidPayload("empty tuple")
		}
		return Payload{Kind: PayloadSample, Samples: []Sample{s}}, nil

	case KindList:
		items := v.Items()
		if xs, ys, ok := splitPoints(items); ok {
			return Payload{Kind: PayloadSeries, X: xs, Y: ys}, nil
		}
		samples := make([]Sample, 0, len(items))
		for _, item := range items {
			if item.Kind() == KindNumber {
				samples = append(samples, Sample{item.Float()})
				continue
			}
			s, err := numbers(item)
			if err != nil {
				return Payload{}, err
			}
			if len(s) == 0 {
				return Payload{}, apperrors.InvalidPayload("empty sample in batch")
			}
			samples = append(samples, s)
		}
		return Payload{Kind: PayloadBatch, Samples: samples}, nil
	}

	return Payload{}, apperrors.InvalidPayload("unrecognized value")
}

// splitPoints reports whether every item is an (x, y) numeric pair and, if
// so, returns the split coordinate sequences.
func splitPoints(items []Value) (xs, ys []float64, ok bool) {
	if len(items) == 0 {
		return nil, nil, false
	}
	for _, item := range items {
		if !item.IsSequence() || len(item.Items()) != 2 {
			return nil, nil, false
		}
		pair := item.Items()
		if pair[0].Kind() != KindNumber || pair[1].Kind() != KindNumber {
			return nil, nil, false
		}
	}
	xs = make([]float64, len(items))
	ys = make([]float64, len(items))
	for i, item := range items {
		xs[i] = item.Items()[0].Float()
		ys[i] = item.Items()[1].Float()
	}
	return xs, ys, true
}

// numbers flattens a sequence of scalars.
func numbers(v Value) ([]float64, error) {
	if !v.IsSequence() {
		return nil, apperrors.InvalidPayload("expected a sequence of numbers")
	}
	out := make([]float64, len(v.Items()))
	for i, item := range v.Items() {
		if item.Kind() != KindNumber {
			return nil, apperrors.InvalidPayload("nested sequences are only allowed as (xs, ys) or (x, y) pairs")
		}
		out[i] = item.Float()
	}
	return out, nil
}
