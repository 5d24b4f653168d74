package entity

import (
	"strings"

	"github.com/medscribe/clinsearch/pkg/types"
)

// abbreviationTypes maps lowercase medical abbreviations to their entity
// type. An exact hit here short-circuits classification at high confidence:
// these abbreviations are unambiguous in clinical usage.
var abbreviationTypes = map[string]types.EntityType{
	// Conditions
	"htn":  types.EntityTypeCondition,
	"dm":   types.EntityTypeCondition,
	"dm2":  types.EntityTypeCondition,
	"t2dm": types.EntityTypeCondition,
	"cad":  types.EntityTypeCondition,
	"chf":  types.EntityTypeCondition,
	"copd": types.EntityTypeCondition,
	"ckd":  types.EntityTypeCondition,
	"afib": types.EntityTypeCondition,
	"mi":   types.EntityTypeCondition,
	"cva":  types.EntityTypeCondition,
	"gerd": types.EntityTypeCondition,
	"uti":  types.EntityTypeCondition,
	"dvt":  types.EntityTypeCondition,
	"pe":   types.EntityTypeCondition,
	"ra":   types.EntityTypeCondition,
	"oa":   types.EntityTypeCondition,
	"hld":  types.EntityTypeCondition,

	// Medications
	"asa":   types.EntityTypeMedication,
	"hctz":  types.EntityTypeMedication,
	"mtx":   types.EntityTypeMedication,
	"ppi":   types.EntityTypeMedication,
	"nsaid": types.EntityTypeMedication,
	"abx":   types.EntityTypeMedication,

	// Symptoms
	"sob": types.EntityTypeSymptom,
	"cp":  types.EntityTypeSymptom,
	"n/v": types.EntityTypeSymptom,
	"ha":  types.EntityTypeSymptom,
	"loc": types.EntityTypeSymptom,

	// Procedures
	"mri":  types.EntityTypeProcedure,
	"ct":   types.EntityTypeProcedure,
	"cxr":  types.EntityTypeProcedure,
	"ekg":  types.EntityTypeProcedure,
	"ecg":  types.EntityTypeProcedure,
	"echo": types.EntityTypeProcedure,
	"egd":  types.EntityTypeProcedure,
	"cabg": types.EntityTypeProcedure,
	"pci":  types.EntityTypeProcedure,

	// Lab tests
	"cbc":   types.EntityTypeLabTest,
	"bmp":   types.EntityTypeLabTest,
	"cmp":   types.EntityTypeLabTest,
	"a1c":   types.EntityTypeLabTest,
	"hba1c": types.EntityTypeLabTest,
	"tsh":   types.EntityTypeLabTest,
	"inr":   types.EntityTypeLabTest,
	"bnp":   types.EntityTypeLabTest,
	"psa":   types.EntityTypeLabTest,
	"lft":   types.EntityTypeLabTest,
	"ua":    types.EntityTypeLabTest,

	// Vital signs
	"bp": types.EntityTypeVital,
	"hr": types.EntityTypeVital,
	"rr": types.EntityTypeVital,
	"o2": types.EntityTypeVital,
}

// SpotAbbreviations returns the known abbreviations present in text as they
// appeared, in order of first occurrence. Intended for lightweight mention
// extraction during ingestion; full NER is the host application's job.
func SpotAbbreviations(text string) []string {
	var found []string
	seen := make(map[string]bool)
	for _, field := range strings.Fields(text) {
		word := strings.Trim(strings.ToLower(field), ".,;:()[]!?\"'")
		if _, ok := abbreviationTypes[word]; !ok || seen[word] {
			continue
		}
		seen[word] = true
		found = append(found, strings.Trim(field, ".,;:()[]!?\"'"))
	}
	return found
}

// wordExpansions maps abbreviated words to their expanded form. Used during
// entity normalization so "htn" and "hypertension" dedupe to one cluster.
var wordExpansions = map[string]string{
	"htn":  "hypertension",
	"hld":  "hyperlipidemia",
	"dm":   "diabetes mellitus",
	"t2dm": "type 2 diabetes mellitus",
	"cad":  "coronary artery disease",
	"chf":  "congestive heart failure",
	"copd": "chronic obstructive pulmonary disease",
	"ckd":  "chronic kidney disease",
	"afib": "atrial fibrillation",
	"mi":   "myocardial infarction",
	"cva":  "cerebrovascular accident",
	"gerd": "gastroesophageal reflux disease",
	"uti":  "urinary tract infection",
	"dvt":  "deep vein thrombosis",
	"sob":  "shortness of breath",
	"asa":  "aspirin",
	"hctz": "hydrochlorothiazide",
	"mtx":  "methotrexate",
	"cxr":  "chest x-ray",
	"ekg":  "electrocardiogram",
	"ecg":  "electrocardiogram",
	"echo": "echocardiogram",
	"cbc":  "complete blood count",
	"bmp":  "basic metabolic panel",
	"cmp":  "comprehensive metabolic panel",
	"a1c":  "hemoglobin a1c",
	"tsh":  "thyroid stimulating hormone",
	"bp":   "blood pressure",
	"hr":   "heart rate",
}
