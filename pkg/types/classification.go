package types

// ClassificationResult is the classifier's verdict for one entity mention.
// Pure output value; never persisted.
type ClassificationResult struct {
	// EntityText is the span that was classified.
	EntityText string `json:"entity_text"`

	// PredictedType is the winning category.
	PredictedType EntityType `json:"predicted_type"`

	// Confidence is the winning score in [0, 1].
	Confidence float64 `json:"confidence"`

	// AlternativeTypes holds up to two runner-up categories with their scores.
	AlternativeTypes []TypeScore `json:"alternative_types,omitempty"`

	// ContextSnippet is the surrounding text used for classification.
	ContextSnippet string `json:"context_snippet,omitempty"`
}

// TypeScore pairs a candidate category with its score.
type TypeScore struct {
	Type  EntityType `json:"type"`
	Score float64    `json:"score"`
}

// CategoryKeywords maps each classifiable entity type to the keyword list
// used for substring scoring. Lists are lowercase; scoring normalizes counts
// by min(5, 0.3 * len(list)) so short and long lists produce scores on the
// same order of magnitude.
func CategoryKeywords() map[EntityType][]string {
	return map[EntityType][]string{
		EntityTypeCondition: {
			"diagnosis", "diagnosed", "chronic", "acute", "disease", "disorder",
			"syndrome", "condition", "history of", "suffers from", "itis",
			"hypertension", "diabetes", "asthma", "copd", "infection",
		},
		EntityTypeMedication: {
			"mg", "mcg", "dose", "dosage", "tablet", "capsule", "prescribed",
			"prescription", "daily", "twice", "oral", "injection", "refill",
			"medication", "drug", "pill", "bid", "tid", "prn",
		},
		EntityTypeSymptom: {
			"pain", "ache", "complains", "complaint", "reports", "feeling",
			"nausea", "dizziness", "fatigue", "fever", "cough", "presenting",
			"onset", "worsening", "intermittent", "radiating",
		},
		EntityTypeProcedure: {
			"surgery", "surgical", "procedure", "performed", "scheduled",
			"operation", "biopsy", "scan", "imaging", "x-ray", "ultrasound",
			"endoscopy", "catheter", "repair", "removal", "therapy",
		},
		EntityTypeLabTest: {
			"lab", "test", "panel", "level", "count", "result", "ordered",
			"blood", "urine", "culture", "serum", "glucose", "cholesterol",
			"elevated", "within normal limits", "specimen",
		},
		EntityTypeAnatomy: {
			"left", "right", "bilateral", "upper", "lower", "anterior",
			"posterior", "chest", "abdomen", "knee", "shoulder", "spine",
			"artery", "lobe", "joint", "muscle",
		},
		EntityTypeAllergy: {
			"allergy", "allergic", "allergies", "reaction", "intolerance",
			"anaphylaxis", "rash", "hives", "sensitivity", "nkda",
		},
		EntityTypeVital: {
			"blood pressure", "bp", "heart rate", "pulse", "temperature",
			"respiratory rate", "oxygen", "saturation", "spo2", "bmi",
			"weight", "height", "mmhg", "bpm",
		},
		EntityTypePerson: {
			"dr", "doctor", "patient", "nurse", "physician", "specialist",
			"referred by", "seen by", "mr", "mrs", "ms",
		},
		EntityTypeOrganization: {
			"hospital", "clinic", "center", "department", "pharmacy",
			"laboratory", "practice", "facility", "insurance", "medical group",
		},
	}
}

// EntityCategoryAliases normalizes user-facing category names from the
// entity: query filter to canonical entity filter keys.
func EntityCategoryAliases() map[string]string {
	return map[string]string{
		"med":         "medication",
		"meds":        "medication",
		"medication":  "medication",
		"drug":        "medication",
		"sx":          "symptom",
		"symptom":     "symptom",
		"dx":          "condition",
		"condition":   "condition",
		"diagnosis":   "condition",
		"lab":         "lab_test",
		"test":        "lab_test",
		"lab_test":    "lab_test",
		"procedure":   "procedure",
		"proc":        "procedure",
		"allergy":     "allergy",
		"vital":       "vital_sign",
		"vitals":      "vital_sign",
		"person":      "person",
		"provider":    "person",
		"org":         "organization",
		"organization": "organization",
	}
}
