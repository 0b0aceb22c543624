package evidence

import (
	"fmt"
	"sort"

	"github.com/go-viper/mapstructure/v2"

	"osint-resolver/pkg/types"
)

// Typed attribute payloads, one shape per entity type. Decoding the open
// attribute map into these makes required-field checks validation-time
// checks rather than runtime guesses.

// PersonAttributes is the attribute shape for person entities.
type PersonAttributes struct {
	Name     string `mapstructure:"name"`
	Email    string `mapstructure:"email"`
	Phone    string `mapstructure:"phone"`
	Location string `mapstructure:"location"`
	LastSeen string `mapstructure:"last_seen"`
}

// CompanyAttributes is the attribute shape for company entities.
type CompanyAttributes struct {
	Name     string `mapstructure:"name"`
	Domain   string `mapstructure:"domain"`
	Email    string `mapstructure:"email"`
	Phone    string `mapstructure:"phone"`
	LastSeen string `mapstructure:"last_seen"`
}

// DomainAttributes is the attribute shape for domain entities.
type DomainAttributes struct {
	Domain    string `mapstructure:"domain"`
	Registrar string `mapstructure:"registrar"`
	LastSeen  string `mapstructure:"last_seen"`
}

// SocialProfileAttributes is the attribute shape for social profiles.
type SocialProfileAttributes struct {
	Platform string `mapstructure:"platform"`
	Username string `mapstructure:"username"`
	Name     string `mapstructure:"name"`
	URL      string `mapstructure:"url"`
	LastSeen string `mapstructure:"last_seen"`
}

// EmailAttributes is the attribute shape for email entities.
type EmailAttributes struct {
	Email    string `mapstructure:"email"`
	LastSeen string `mapstructure:"last_seen"`
}

// PhoneAttributes is the attribute shape for phone entities.
type PhoneAttributes struct {
	Phone    string `mapstructure:"phone"`
	LastSeen string `mapstructure:"last_seen"`
}

// UsernameAttributes is the attribute shape for username entities.
type UsernameAttributes struct {
	Username string `mapstructure:"username"`
	Platform string `mapstructure:"platform"`
	LastSeen string `mapstructure:"last_seen"`
}

// requiredAttributes is the fixed per-type required-attribute table used
// for completeness scoring and schema validation.
var requiredAttributes = map[types.EntityType][]string{
	types.EntityTypePerson:        {types.AttrName},
	types.EntityTypeCompany:       {types.AttrName},
	types.EntityTypeDomain:        {types.AttrDomain},
	types.EntityTypeSocialProfile: {types.AttrPlatform, types.AttrUsername},
	types.EntityTypeEmail:         {types.AttrEmail},
	types.EntityTypePhone:         {types.AttrPhone},
	types.EntityTypeUsername:      {types.AttrUsername},
}

// RequiredAttributes returns the required attribute keys for the given
// entity type, in a fixed order.
func RequiredAttributes(entityType types.EntityType) []string {
	required := requiredAttributes[entityType]
	out := make([]string, len(required))
	copy(out, required)
	return out
}

// MissingRequired returns the required attributes absent or empty on the
// entity, in a fixed order. The check goes through the decoded typed
// payload, so weakly typed values (a numeric phone, say) count as
// present; entities whose attributes cannot be decoded fall back to a
// raw map check.
func MissingRequired(e *types.Entity) []string {
	payload, err := DecodeAttributes(e)
	if err != nil {
		return missingFromRaw(e)
	}
	missing := missingFromPayload(payload)
	sort.Strings(missing)
	return missing
}

func missingFromRaw(e *types.Entity) []string {
	var missing []string
	for _, key := range requiredAttributes[e.Type] {
		if !e.HasAttr(key) {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

func missingFromPayload(payload any) []string {
	var missing []string
	switch p := payload.(type) {
	case *PersonAttributes:
		if p.Name == "" {
			missing = append(missing, types.AttrName)
		}
	case *CompanyAttributes:
		if p.Name == "" {
			missing = append(missing, types.AttrName)
		}
	case *DomainAttributes:
		if p.Domain == "" {
			missing = append(missing, types.AttrDomain)
		}
	case *SocialProfileAttributes:
		if p.Platform == "" {
			missing = append(missing, types.AttrPlatform)
		}
		if p.Username == "" {
			missing = append(missing, types.AttrUsername)
		}
	case *EmailAttributes:
		if p.Email == "" {
			missing = append(missing, types.AttrEmail)
		}
	case *PhoneAttributes:
		if p.Phone == "" {
			missing = append(missing, types.AttrPhone)
		}
	case *UsernameAttributes:
		if p.Username == "" {
			missing = append(missing, types.AttrUsername)
		}
	}
	return missing
}

// DecodeAttributes decodes the entity's open attribute map into the typed
// payload for its entity type. Unknown keys are preserved in the map but
// ignored by the decode; the typed view exists for validation and scoring.
func DecodeAttributes(e *types.Entity) (any, error) {
	var payload any
	switch e.Type {
	case types.EntityTypePerson:
		payload = &PersonAttributes{}
	case types.EntityTypeCompany:
		payload = &CompanyAttributes{}
	case types.EntityTypeDomain:
		payload = &DomainAttributes{}
	case types.EntityTypeSocialProfile:
		payload = &SocialProfileAttributes{}
	case types.EntityTypeEmail:
		payload = &EmailAttributes{}
	case types.EntityTypePhone:
		payload = &PhoneAttributes{}
	case types.EntityTypeUsername:
		payload = &UsernameAttributes{}
	default:
		return nil, fmt.Errorf("no attribute schema for entity type %q", e.Type)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           payload,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build attribute decoder: %w", err)
	}
	if err := decoder.Decode(e.Attributes); err != nil {
		return nil, fmt.Errorf("failed to decode attributes for entity %s: %w", e.ID, err)
	}
	return payload, nil
}

// ValidateSchema decodes the entity's attributes and reports the missing
// required fields as a malformed-entity error.
func ValidateSchema(e *types.Entity) error {
	if _, err := DecodeAttributes(e); err != nil {
		return types.NewMalformedEntityError(e.ID, err.Error())
	}
	if missing := MissingRequired(e); len(missing) > 0 {
		return types.NewMalformedEntityError(e.ID,
			fmt.Sprintf("missing required attributes: %v", missing))
	}
	return nil
}
