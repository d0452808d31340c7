package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestType_Valid(t *testing.T) {
	for _, typ := range Types {
		assert.True(t, typ.Valid(), string(typ))
	}
	assert.False(t, Type("invoice_paid").Valid())
	assert.False(t, Type("").Valid())
}

func TestSenderRole_Valid(t *testing.T) {
	assert.True(t, RoleAdmin.Valid())
	assert.True(t, RoleClient.Valid())
	assert.True(t, RoleSystem.Valid())
	assert.False(t, SenderRole("owner").Valid())
}

func TestFilter_EffectiveLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, Filter{}.EffectiveLimit())
	assert.Equal(t, DefaultListLimit, Filter{Limit: -1}.EffectiveLimit())
	assert.Equal(t, 10, Filter{Limit: 10}.EffectiveLimit())
	assert.Equal(t, MaxListLimit, Filter{Limit: 10_000}.EffectiveLimit())
}
