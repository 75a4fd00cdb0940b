package risk

import (
	"sort"

	"maternalcare.com/mrp/types"
	"maternalcare.com/mrp/utils"
)

// defaultRiskProbability stands in for a risk type whose record failed that
// type's own validation, so one missing field never blocks the whole report.
const defaultRiskProbability = 0.30

// PredictComprehensiveRisk runs all three risk types independently and
// aggregates them. A single-risk validation failure is replaced by a neutral
// low-risk entry; the call errors only when every risk type rejects the
// record.
func (p *Predictor) PredictComprehensiveRisk(record types.PatientRecord) (types.ComprehensiveResult, error) {
	individual := make(map[types.RiskType]types.RiskResult, len(types.AllRiskTypes))
	var firstErr error
	failures := 0

	for _, riskType := range types.AllRiskTypes {
		result, err := p.Predict(record, riskType)
		if err != nil {
			if !IsInvalidInput(err) {
				return types.ComprehensiveResult{}, err
			}
			if firstErr == nil {
				firstErr = err
			}
			failures++
			p.log.Warn().Err(err).
				Str("risk_type", string(riskType)).
				Msg("Risk type skipped in comprehensive assessment")
			result = neutralResult(riskType)
		}
		individual[riskType] = result
	}
	if failures == len(types.AllRiskTypes) {
		return types.ComprehensiveResult{}, firstErr
	}

	var sum float64
	for _, result := range individual {
		sum += result.RiskProbability
	}
	overall := sum / float64(len(individual))
	level := types.DefaultThresholds.Level(overall)
	factors := mergeFactors(individual)

	return types.ComprehensiveResult{
		OverallRiskLevel: level,
		OverallRiskScore: utils.Round2(overall),
		IndividualRisks:  individual,
		TopRiskFactors:   factors,
		Recommendations:  recommendOverall(level, factors),
	}, nil
}

func neutralResult(riskType types.RiskType) types.RiskResult {
	return types.RiskResult{
		RiskType:        riskType,
		RiskLevel:       types.LevelLow,
		RiskProbability: defaultRiskProbability,
		Confidence:      utils.Round2(2 * (1 - defaultRiskProbability - 0.5)),
		Recommendations: routineRecommendations[riskType],
		ModelType:       types.RuleBasedModelType,
	}
}

// mergeFactors de-duplicates factors across risk types, keeping the highest
// importance seen for each name.
func mergeFactors(individual map[types.RiskType]types.RiskResult) []types.RiskFactor {
	best := make(map[string]float64)
	for _, riskType := range types.AllRiskTypes {
		for _, factor := range individual[riskType].TopRiskFactors {
			if factor.Importance > best[factor.Name] {
				best[factor.Name] = factor.Importance
			}
		}
	}
	merged := make([]types.RiskFactor, 0, len(best))
	for name, importance := range best {
		merged = append(merged, types.RiskFactor{Name: name, Importance: importance})
	}
	sort.Slice(merged, func(a, b int) bool {
		if merged[a].Importance != merged[b].Importance {
			return merged[a].Importance > merged[b].Importance
		}
		return merged[a].Name < merged[b].Name
	})
	if len(merged) > maxTopFactors {
		merged = merged[:maxTopFactors]
	}
	return merged
}
