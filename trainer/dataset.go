package trainer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"maternalcare.com/mrp/features"
	"maternalcare.com/mrp/logger"
	"maternalcare.com/mrp/types"
	"maternalcare.com/mrp/utils"
	"maternalcare.com/mrp/validate"
)

// Dataset is a cleaned, normalized set of training records. Labels are read
// per risk type at matrix-build time, so one file can carry all three.
type Dataset struct {
	Records []types.PatientRecord
}

// LoadDataset reads a CSV or JSON-array file, normalizes every record,
// drops exact duplicates and blanks out-of-range values.
func LoadDataset(path string) (*Dataset, error) {
	var records []types.PatientRecord
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = loadCSV(path)
	case ".json":
		records, err = loadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return clean(records), nil
}

func loadCSV(path string) ([]types.PatientRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("dataset %s has no data rows", path)
	}

	header := rows[0]
	records := make([]types.PatientRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(types.PatientRecord, len(header))
		for i, cell := range row {
			if i >= len(header) {
				break
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if value, err := strconv.ParseFloat(cell, 64); err == nil {
				record[header[i]] = value
			} else {
				record[header[i]] = cell
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func loadJSON(path string) ([]types.PatientRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []types.PatientRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	return records, nil
}

var datasetLogger = logger.NewLogger("Dataset")

// clean normalizes records, removes exact duplicates and deletes fields that
// fail range or cross-field checks so imputation can refill them.
func clean(raw []types.PatientRecord) *Dataset {
	seen := make(map[uint64]bool, len(raw))
	ds := &Dataset{Records: make([]types.PatientRecord, 0, len(raw))}
	duplicates, blanked := 0, 0

	for _, record := range raw {
		normalized := record.Normalize()
		key := fingerprint(normalized)
		if seen[key] {
			duplicates++
			continue
		}
		seen[key] = true

		_, errs := validate.Validate(normalized, types.PretermBirth)
		for _, ve := range errs {
			switch ve.Kind {
			case validate.OutOfRange, validate.WrongType, validate.CrossFieldViolation:
				delete(normalized, ve.Field)
				blanked++
			}
		}
		ds.Records = append(ds.Records, normalized)
	}

	datasetLogger.Info().
		Int("rows", len(ds.Records)).
		Int("duplicates_dropped", duplicates).
		Int("values_blanked", blanked).
		Msg("Dataset cleaned")
	return ds
}

func fingerprint(record types.PatientRecord) uint64 {
	keys := make([]string, 0, len(record))
	for key := range record {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = fmt.Sprintf("%s=%v", key, record[key])
	}
	return utils.HashStrings(parts)
}

// Matrix builds the training matrix for one risk type. Missing measurements
// are NaN for the imputers. Rows without a label column get a pseudo-label
// from the rule engine, so a fully unlabeled file still trains.
func (ds *Dataset) Matrix(riskType types.RiskType, order []string, labelColumn string) (X [][]float64, y []int, pseudoLabels int) {
	for _, record := range ds.Records {
		var label int
		if value, ok := record.Float(labelColumn); ok {
			if value >= 1 {
				label = 1
			}
		} else {
			label = pseudoLabel(record, riskType)
			pseudoLabels++
		}

		derived := features.DeriveForTraining(record)
		row := make([]float64, len(order))
		for i, name := range order {
			if value, ok := derived[name]; ok {
				row[i] = value
			} else {
				row[i] = 0
			}
		}
		X = append(X, row)
		y = append(y, label)
	}
	return X, y, pseudoLabels
}

// pseudoLabel applies diagnostic criteria to unlabeled historical rows.
// Training-time only; serving never labels anything.
func pseudoLabel(record types.PatientRecord, riskType types.RiskType) int {
	switch riskType {
	case types.Preeclampsia:
		systolic, _ := record.Float(types.KeySystolic)
		diastolic, _ := record.Float(types.KeyDiastolic)
		weeks, _ := record.Float(types.KeyGestationalWeeks)
		if weeks > 20 && (systolic >= 140 || diastolic >= 90) {
			return 1
		}
	case types.GestationalDiabetes:
		fasting, _ := record.Float(types.KeyFastingGlucose)
		ogtt1h, _ := record.Float(types.KeyOGTT1h)
		ogtt2h, _ := record.Float(types.KeyOGTT2h)
		random, _ := record.Float(types.KeyBloodSugar)
		// IADPSG cut points plus the random glucose diagnostic bound.
		if fasting >= 5.1 || ogtt1h >= 10.0 || ogtt2h >= 8.5 || random >= 11.1 {
			return 1
		}
	case types.PretermBirth:
		// Historical rows record the delivery week.
		if weeks, ok := record.Float(types.KeyGestationalWeeks); ok && weeks < 37 {
			return 1
		}
	}
	return 0
}
