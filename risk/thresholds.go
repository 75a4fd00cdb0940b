package risk

import (
	"fmt"
	"sync"

	"maternalcare.com/mrp/types"
)

// ThresholdStore holds the mutable low/high cut points per risk type.
// Writers replace whole entries; readers take a value snapshot for the
// duration of one prediction, so a threshold change applies to subsequent
// predictions only.
type ThresholdStore struct {
	mu      sync.RWMutex
	current map[types.RiskType]types.Thresholds
}

func NewThresholdStore() *ThresholdStore {
	current := make(map[types.RiskType]types.Thresholds, len(types.AllRiskTypes))
	for _, riskType := range types.AllRiskTypes {
		current[riskType] = types.DefaultThresholds
	}
	return &ThresholdStore{current: current}
}

func (s *ThresholdStore) Get(riskType types.RiskType) types.Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.current[riskType]; ok {
		return t
	}
	return types.DefaultThresholds
}

func (s *ThresholdStore) All() map[types.RiskType]types.Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[types.RiskType]types.Thresholds, len(s.current))
	for riskType, t := range s.current {
		out[riskType] = t
	}
	return out
}

func (s *ThresholdStore) Set(riskType types.RiskType, t types.Thresholds) error {
	if !riskType.Valid() {
		return fmt.Errorf("unknown risk type %q", riskType)
	}
	if !(t.Low > 0 && t.Low < t.High && t.High < 1) {
		return fmt.Errorf("thresholds must satisfy 0 < low < high < 1, got %+v", t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[riskType] = t
	return nil
}
