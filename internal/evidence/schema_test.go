package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osint-resolver/pkg/types"
)

func TestRequiredAttributes(t *testing.T) {
	assert.Equal(t, []string{types.AttrName}, RequiredAttributes(types.EntityTypePerson))
	assert.Equal(t, []string{types.AttrPlatform, types.AttrUsername},
		RequiredAttributes(types.EntityTypeSocialProfile))
	assert.Empty(t, RequiredAttributes(types.EntityType("wallet")))
}

func TestMissingRequired(t *testing.T) {
	complete := types.NewEntity(types.EntityTypeSocialProfile, map[string]any{
		types.AttrPlatform: "github",
		types.AttrUsername: "jdoe",
	})
	assert.Empty(t, MissingRequired(complete))

	partial := types.NewEntity(types.EntityTypeSocialProfile, map[string]any{
		types.AttrPlatform: "github",
	})
	assert.Equal(t, []string{types.AttrUsername}, MissingRequired(partial))

	// Empty strings count as absent.
	blank := types.NewEntity(types.EntityTypeDomain, map[string]any{types.AttrDomain: ""})
	assert.Equal(t, []string{types.AttrDomain}, MissingRequired(blank))

	// Weakly typed values decode and count as present.
	numeric := types.NewEntity(types.EntityTypePhone, map[string]any{types.AttrPhone: 15551234567})
	assert.Empty(t, MissingRequired(numeric))
}

func TestDecodeAttributes(t *testing.T) {
	e := types.NewEntity(types.EntityTypePerson, map[string]any{
		types.AttrName:  "John Doe",
		types.AttrEmail: "john@acme.com",
		"favorite_food": "ramen", // unknown keys are ignored, not errors
	})

	payload, err := DecodeAttributes(e)
	require.NoError(t, err)

	person, ok := payload.(*PersonAttributes)
	require.True(t, ok)
	assert.Equal(t, "John Doe", person.Name)
	assert.Equal(t, "john@acme.com", person.Email)
}

func TestDecodeAttributesWeakTyping(t *testing.T) {
	e := types.NewEntity(types.EntityTypePhone, map[string]any{
		types.AttrPhone: 15551234567,
	})
	payload, err := DecodeAttributes(e)
	require.NoError(t, err)

	phone, ok := payload.(*PhoneAttributes)
	require.True(t, ok)
	assert.Equal(t, "15551234567", phone.Phone)
}

func TestDecodeAttributesUnknownType(t *testing.T) {
	e := &types.Entity{ID: "x", Type: "wallet", Attributes: map[string]any{"a": "b"}}
	_, err := DecodeAttributes(e)
	assert.Error(t, err)
}

func TestValidateSchema(t *testing.T) {
	valid := types.NewEntity(types.EntityTypeEmail, map[string]any{
		types.AttrEmail: "john@acme.com",
	})
	assert.NoError(t, ValidateSchema(valid))

	missing := types.NewEntity(types.EntityTypeEmail, map[string]any{
		types.AttrLastSeen: "2026-08-01",
	})
	err := ValidateSchema(missing)
	require.Error(t, err)

	var malformed *types.MalformedEntityError
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, err.Error(), "email")
}
