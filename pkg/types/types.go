// Package types provides core data structures and type definitions
// for the entity resolution engine, including entities, conflicts and
// resolution results.
package types

import (
	"time"

	"github.com/google/uuid"
)

// EntityType represents the kind of discovered entity. Entities are only
// ever compared or merged within the same kind.
type EntityType string

const (
	// EntityTypePerson represents a natural person
	EntityTypePerson EntityType = "person"
	// EntityTypeCompany represents a company or organization
	EntityTypeCompany EntityType = "company"
	// EntityTypeDomain represents an internet domain
	EntityTypeDomain EntityType = "domain"
	// EntityTypeSocialProfile represents an account on a social platform
	EntityTypeSocialProfile EntityType = "social_profile"
	// EntityTypeEmail represents an email address
	EntityTypeEmail EntityType = "email"
	// EntityTypePhone represents a phone number
	EntityTypePhone EntityType = "phone"
	// EntityTypeUsername represents a bare username or handle
	EntityTypeUsername EntityType = "username"
)

// Valid returns true if the entity type is valid
func (et EntityType) Valid() bool {
	switch et {
	case EntityTypePerson, EntityTypeCompany, EntityTypeDomain,
		EntityTypeSocialProfile, EntityTypeEmail, EntityTypePhone, EntityTypeUsername:
		return true
	}
	return false
}

// AllEntityTypes returns every valid entity type in a fixed order.
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityTypePerson, EntityTypeCompany, EntityTypeDomain,
		EntityTypeSocialProfile, EntityTypeEmail, EntityTypePhone, EntityTypeUsername,
	}
}

// VerificationStatus represents how strongly a record has been verified.
// The tiers are ordered: verified > probable > possible > unlikely.
type VerificationStatus string

const (
	// VerificationVerified indicates the record was confirmed by a trusted source
	VerificationVerified VerificationStatus = "verified"
	// VerificationProbable indicates strong but unconfirmed evidence
	VerificationProbable VerificationStatus = "probable"
	// VerificationPossible indicates weak supporting evidence
	VerificationPossible VerificationStatus = "possible"
	// VerificationUnlikely indicates the record is most likely noise
	VerificationUnlikely VerificationStatus = "unlikely"
)

// Valid returns true if the verification status is valid
func (vs VerificationStatus) Valid() bool {
	switch vs {
	case VerificationVerified, VerificationProbable, VerificationPossible, VerificationUnlikely:
		return true
	}
	return false
}

// Rank returns the ordering weight of the tier, higher is stronger.
func (vs VerificationStatus) Rank() int {
	switch vs {
	case VerificationVerified:
		return 4
	case VerificationProbable:
		return 3
	case VerificationPossible:
		return 2
	case VerificationUnlikely:
		return 1
	default:
		return 0
	}
}

// Well-known attribute keys. The attribute map is open; these are the keys
// the scoring and conflict logic understands.
const (
	AttrName     = "name"
	AttrUsername = "username"
	AttrHandle   = "handle"
	AttrEmail    = "email"
	AttrPhone    = "phone"
	AttrPlatform = "platform"
	AttrDomain   = "domain"
	AttrURL      = "url"
	AttrLastSeen = "last_seen"
)

// Source records the provenance of one observation of an entity.
type Source struct {
	URL         string    `json:"url"`
	Connector   string    `json:"connector"`
	Confidence  float64   `json:"confidence"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// Key returns the identity of a source for set-union purposes.
func (s Source) Key() string {
	return s.Connector + "|" + s.URL
}

// Entity is one discovered record about the investigation subject.
type Entity struct {
	ID                 string             `json:"id"`
	Type               EntityType         `json:"entity_type"`
	Attributes         map[string]any     `json:"attributes"`
	ConfidenceScore    float64            `json:"confidence_score"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	Sources            []Source           `json:"sources"`
	MergedEntities     []string           `json:"merged_entities,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// NewEntity creates an entity with a fresh ID and timestamps.
func NewEntity(entityType EntityType, attributes map[string]any) *Entity {
	now := time.Now().UTC()
	if attributes == nil {
		attributes = make(map[string]any)
	}
	return &Entity{
		ID:                 uuid.New().String(),
		Type:               entityType,
		Attributes:         attributes,
		ConfidenceScore:    50,
		VerificationStatus: VerificationPossible,
		Sources:            []Source{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Attr returns the string form of an attribute, or "" when the attribute
// is absent or not a string.
func (e *Entity) Attr(key string) string {
	if e.Attributes == nil {
		return ""
	}
	if v, ok := e.Attributes[key].(string); ok {
		return v
	}
	return ""
}

// HasAttr reports whether the attribute is present and non-empty.
func (e *Entity) HasAttr(key string) bool {
	return e.Attr(key) != ""
}

// PrincipalAttr returns the key of the entity's principal identifier.
func (e *Entity) PrincipalAttr() string {
	switch e.Type {
	case EntityTypeDomain:
		return AttrDomain
	case EntityTypeSocialProfile, EntityTypeUsername:
		return AttrUsername
	case EntityTypeEmail:
		return AttrEmail
	case EntityTypePhone:
		return AttrPhone
	case EntityTypePerson, EntityTypeCompany:
		return AttrName
	default:
		return AttrName
	}
}

// Principal returns the value of the entity's principal identifier.
func (e *Entity) Principal() string {
	return e.Attr(e.PrincipalAttr())
}

// Validate checks the entity against the malformed-entity taxonomy.
// A nil return means the entity may enter resolution.
func (e *Entity) Validate() error {
	if e.ID == "" {
		return NewMalformedEntityError("", "entity id is empty")
	}
	if !e.Type.Valid() {
		return NewMalformedEntityError(e.ID, "missing or unknown entity_type")
	}
	if len(e.Attributes) == 0 {
		return NewMalformedEntityError(e.ID, "entity has no attributes")
	}
	if e.ConfidenceScore < 0 || e.ConfidenceScore > 100 {
		return NewMalformedEntityError(e.ID, "confidence_score out of [0,100]")
	}
	if e.VerificationStatus != "" && !e.VerificationStatus.Valid() {
		return NewMalformedEntityError(e.ID, "unknown verification_status")
	}
	return nil
}

// Clone returns a deep copy of the entity. Resolution mutates entities
// (merges, confidence down-weighting) and must never alter caller input.
func (e *Entity) Clone() *Entity {
	clone := *e
	clone.Attributes = make(map[string]any, len(e.Attributes))
	for k, v := range e.Attributes {
		clone.Attributes[k] = v
	}
	clone.Sources = make([]Source, len(e.Sources))
	copy(clone.Sources, e.Sources)
	if e.MergedEntities != nil {
		clone.MergedEntities = make([]string, len(e.MergedEntities))
		copy(clone.MergedEntities, e.MergedEntities)
	}
	return &clone
}

// Touch refreshes the updated_at timestamp.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}
