package types

import "time"

// EntityType is the semantic category assigned to an extracted text span.
type EntityType string

// Clinical entity types. EntityTypeUnknown, EntityTypeEntity and
// EntityTypeDocument are structural: they are never produced by keyword
// scoring and never participate in classification candidate lists.
const (
	EntityTypeCondition    EntityType = "CONDITION"
	EntityTypeMedication   EntityType = "MEDICATION"
	EntityTypeSymptom      EntityType = "SYMPTOM"
	EntityTypeProcedure    EntityType = "PROCEDURE"
	EntityTypeLabTest      EntityType = "LAB_TEST"
	EntityTypeAnatomy      EntityType = "ANATOMY"
	EntityTypeAllergy      EntityType = "ALLERGY"
	EntityTypeVital        EntityType = "VITAL_SIGN"
	EntityTypePerson       EntityType = "PERSON"
	EntityTypeOrganization EntityType = "ORGANIZATION"
	EntityTypeUnknown      EntityType = "UNKNOWN"
	EntityTypeEntity       EntityType = "ENTITY"
	EntityTypeDocument     EntityType = "DOCUMENT"
)

// IsStructural reports whether the type is a bookkeeping category that must
// be excluded from classification scoring.
func (t EntityType) IsStructural() bool {
	return t == EntityTypeUnknown || t == EntityTypeEntity || t == EntityTypeDocument
}

// EntityCluster is the canonical, deduplicated representation of one
// real-world concept mentioned under multiple text variants across documents.
// Clusters are owned by the deduplicator for the lifetime of a session and
// are never deleted, only merged.
type EntityCluster struct {
	// CanonicalID uniquely identifies the cluster.
	CanonicalID string `json:"canonical_id"`

	// CanonicalName is the display form of the entity (the first sighting).
	CanonicalName string `json:"canonical_name"`

	// Type is the entity category. Clusters of different types never merge.
	Type EntityType `json:"entity_type"`

	// Variants holds every surface form observed for this entity.
	Variants map[string]bool `json:"variants"`

	// SourceDocuments holds the IDs of documents mentioning this entity.
	SourceDocuments map[string]bool `json:"source_documents"`

	// FirstSeen and LastSeen bound the observation window.
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	// MentionCount is the total number of mentions folded into the cluster.
	MentionCount int `json:"mention_count"`

	// Confidence is the running mention-weighted average of per-mention
	// extraction confidences.
	Confidence float64 `json:"confidence"`

	// Embedding is the canonical-name embedding, when one was computed.
	Embedding []float32 `json:"embedding,omitempty"`
}
