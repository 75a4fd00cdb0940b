package risk

import (
	"maternalcare.com/mrp/rules"
	"maternalcare.com/mrp/types"
)

const maxRecommendations = 10

var elevatedRecommendations = map[types.RiskType][]string{
	types.Preeclampsia: {
		"Monitor blood pressure at home twice daily",
		"Schedule prenatal visits every 1-2 weeks",
		"Watch for headaches, visual changes or upper abdominal pain",
		"Discuss low-dose aspirin prophylaxis with your obstetrician",
		"Keep a daily record of fetal movements",
	},
	types.GestationalDiabetes: {
		"Schedule an oral glucose tolerance test",
		"Limit refined sugar and follow a balanced diet plan",
		"Self-monitor blood glucose as instructed",
		"Take 30 minutes of moderate exercise daily unless contraindicated",
		"Consult a registered dietitian for a meal plan",
	},
	types.PretermBirth: {
		"Schedule cervical length monitoring by ultrasound",
		"Avoid heavy lifting and prolonged standing",
		"Learn the warning signs of preterm labor",
		"Discuss progesterone supplementation with your obstetrician",
		"Rest with reduced activity as advised",
	},
}

var routineRecommendations = map[types.RiskType][]string{
	types.Preeclampsia: {
		"Continue routine prenatal visits",
		"Check blood pressure at each visit",
	},
	types.GestationalDiabetes: {
		"Continue routine prenatal visits",
		"Maintain a balanced diet and regular activity",
	},
	types.PretermBirth: {
		"Continue routine prenatal visits",
		"Maintain adequate rest and hydration",
	},
}

// factorRecommendations adds advice for specific fired or important factors,
// on top of the per-risk list.
var factorRecommendations = map[string]string{
	rules.FactorElevatedBP:      "Reduce sodium intake and avoid caffeine",
	rules.FactorElevatedBMI:     "Discuss healthy gestational weight gain targets",
	rules.FactorGlucoseAbnormal: "Repeat glucose testing within one week",
	rules.FactorAdvancedAge:     "Consider additional fetal growth ultrasounds",
	rules.FactorShortCervix:     "Avoid strenuous activity until reviewed",
	rules.FactorMultiples:       "Plan more frequent growth scans for a multiple pregnancy",
}

var overallBaseRecommendations = map[types.RiskLevel][]string{
	types.LevelHigh: {
		"Arrange specialist obstetric review within one week",
		"Increase prenatal visit frequency",
		"Prepare an emergency contact plan with your care team",
	},
	types.LevelMedium: {
		"Schedule a follow-up assessment within two weeks",
		"Track symptoms daily and report changes promptly",
		"Review your care plan at the next prenatal visit",
	},
	types.LevelLow: {
		"Continue routine prenatal care",
		"Maintain a healthy diet and moderate exercise",
		"Attend all scheduled screening appointments",
	},
}

var generalHealthRecommendations = []string{
	"Avoid smoking and alcohol throughout pregnancy",
	"Take prenatal vitamins with folic acid daily",
	"Get adequate sleep and manage stress",
}

// recommendFor builds the ordered, de-duplicated advice list for one risk.
func recommendFor(riskType types.RiskType, level types.RiskLevel, factors []types.RiskFactor) []string {
	builder := newAdviceBuilder()
	if level == types.LevelLow {
		builder.addAll(routineRecommendations[riskType])
	} else {
		builder.addAll(elevatedRecommendations[riskType])
	}
	for _, factor := range factors {
		if advice, ok := factorRecommendations[factor.Name]; ok {
			builder.add(advice)
		}
	}
	return builder.list()
}

func recommendOverall(level types.RiskLevel, factors []types.RiskFactor) []string {
	builder := newAdviceBuilder()
	builder.addAll(overallBaseRecommendations[level])
	for _, factor := range factors {
		if advice, ok := factorRecommendations[factor.Name]; ok {
			builder.add(advice)
		}
	}
	builder.addAll(generalHealthRecommendations)
	return builder.list()
}

// adviceBuilder keeps first-insertion order and caps the list.
type adviceBuilder struct {
	seen  map[string]bool
	items []string
}

func newAdviceBuilder() *adviceBuilder {
	return &adviceBuilder{seen: make(map[string]bool)}
}

func (b *adviceBuilder) add(item string) {
	if len(b.items) >= maxRecommendations || b.seen[item] {
		return
	}
	b.seen[item] = true
	b.items = append(b.items, item)
}

func (b *adviceBuilder) addAll(items []string) {
	for _, item := range items {
		b.add(item)
	}
}

func (b *adviceBuilder) list() []string {
	return b.items
}
