package preprocess

import (
	"encoding/json"
	"math"
	"sort"

	"maternalcare.com/mrp/ml"
)

// Scaler type names used in serialized envelopes and trainer config.
const (
	TypeStandard = "standard_scaler"
	TypeMinMax   = "minmax_scaler"
	TypeRobust   = "robust_scaler"
)

func init() {
	ml.RegisterTransformer(TypeStandard, func(params json.RawMessage) (ml.Transformer, error) {
		var s StandardScaler
		return &s, json.Unmarshal(params, &s)
	})
	ml.RegisterTransformer(TypeMinMax, func(params json.RawMessage) (ml.Transformer, error) {
		var s MinMaxScaler
		return &s, json.Unmarshal(params, &s)
	})
	ml.RegisterTransformer(TypeRobust, func(params json.RawMessage) (ml.Transformer, error) {
		var s RobustScaler
		return &s, json.Unmarshal(params, &s)
	})
}

// NewScaler returns an unfitted scaler by config name, or nil for "none".
func NewScaler(name string) ml.Transformer {
	switch name {
	case "standard", TypeStandard:
		return &StandardScaler{}
	case "minmax", TypeMinMax:
		return &MinMaxScaler{}
	case "robust", TypeRobust:
		return &RobustScaler{}
	}
	return nil
}

// Fittable is implemented by every scaler in this package.
type Fittable interface {
	Fit(X [][]float64)
}

type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *StandardScaler) Type() string { return TypeStandard }

func (s *StandardScaler) Fit(X [][]float64) {
	cols := columns(X)
	s.Mean = make([]float64, cols)
	s.Scale = make([]float64, cols)
	for j := 0; j < cols; j++ {
		var sum float64
		for i := range X {
			sum += X[i][j]
		}
		mean := sum / float64(len(X))
		var variance float64
		for i := range X {
			d := X[i][j] - mean
			variance += d * d
		}
		std := math.Sqrt(variance / float64(len(X)))
		if std == 0 {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
}

func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if err := ml.CheckDimension(len(s.Mean), len(x)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for j := range x {
		out[j] = (x[j] - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

type MinMaxScaler struct {
	Min   []float64 `json:"min"`
	Range []float64 `json:"range"`
}

func (s *MinMaxScaler) Type() string { return TypeMinMax }

func (s *MinMaxScaler) Fit(X [][]float64) {
	cols := columns(X)
	s.Min = make([]float64, cols)
	s.Range = make([]float64, cols)
	for j := 0; j < cols; j++ {
		lo, hi := X[0][j], X[0][j]
		for i := range X {
			if X[i][j] < lo {
				lo = X[i][j]
			}
			if X[i][j] > hi {
				hi = X[i][j]
			}
		}
		span := hi - lo
		if span == 0 {
			span = 1
		}
		s.Min[j] = lo
		s.Range[j] = span
	}
}

func (s *MinMaxScaler) Transform(x []float64) ([]float64, error) {
	if err := ml.CheckDimension(len(s.Min), len(x)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for j := range x {
		out[j] = (x[j] - s.Min[j]) / s.Range[j]
	}
	return out, nil
}

// RobustScaler centers on the median and scales by the interquartile range.
type RobustScaler struct {
	Center []float64 `json:"center"`
	IQR    []float64 `json:"iqr"`
}

func (s *RobustScaler) Type() string { return TypeRobust }

func (s *RobustScaler) Fit(X [][]float64) {
	cols := columns(X)
	s.Center = make([]float64, cols)
	s.IQR = make([]float64, cols)
	column := make([]float64, len(X))
	for j := 0; j < cols; j++ {
		for i := range X {
			column[i] = X[i][j]
		}
		sort.Float64s(column)
		s.Center[j] = quantile(column, 0.5)
		iqr := quantile(column, 0.75) - quantile(column, 0.25)
		if iqr == 0 {
			iqr = 1
		}
		s.IQR[j] = iqr
	}
}

func (s *RobustScaler) Transform(x []float64) ([]float64, error) {
	if err := ml.CheckDimension(len(s.Center), len(x)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for j := range x {
		out[j] = (x[j] - s.Center[j]) / s.IQR[j]
	}
	return out, nil
}

func columns(X [][]float64) int {
	if len(X) == 0 {
		return 0
	}
	return len(X[0])
}

// quantile expects sorted data, linear interpolation between points.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
