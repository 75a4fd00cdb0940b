package features

import "strings"

// Vocabulary is the fixed risk-factor token set matched against the
// free-text risk_factors field. Flag feature names are "risk_" + entry.
var Vocabulary = []string{
	"hypertension",
	"diabetes",
	"obesity",
	"advanced_age",
	"multiples",
	"prior_preeclampsia",
	"prior_gdm",
	"smoking",
	"family_history",
	"anemia",
	"thyroid",
	"autoimmune",
	"renal",
	"hepatic",
	"cardiac",
	"placenta_previa",
	"placental_abruption",
	"polyhydramnios",
	"oligohydramnios",
	"iugr",
	"prior_preterm",
	"prior_stillbirth",
	"drug_use",
	"toxin_exposure",
}

// MatchFactors returns the vocabulary entries present in the free text by
// substring match, in vocabulary order.
func MatchFactors(text string) []string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return nil
	}
	var matched []string
	for _, term := range Vocabulary {
		if strings.Contains(normalized, term) ||
			strings.Contains(normalized, strings.ReplaceAll(term, "_", " ")) {
			matched = append(matched, term)
		}
	}
	return matched
}
