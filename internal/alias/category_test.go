package alias

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := map[string]Category{
		"Client":      CategoryPerson,
		"person":      CategoryPerson,
		"COMPANY":     CategoryOrganization,
		"national_id": CategoryNationalID,
		"ID":          CategoryNationalID,
		"Redacted":    CategoryCustom,
		"custom":      CategoryCustom,
		" entity ":    CategoryEntity,
	}
	for in, want := range tests {
		got, err := ParseCategory(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCategory("Planet")
	assert.Error(t, err)
}

func TestParseToken(t *testing.T) {
	c, n, ok := ParseToken("[Company_12]")
	require.True(t, ok)
	assert.Equal(t, CategoryOrganization, c)
	assert.Equal(t, 12, n)

	for _, bad := range []string{"[Client_0]", "[Client_ 1]", "[Planet_1]", "Client_1", "[Client_1] ", "[Client_01]"} {
		assert.False(t, IsToken(bad), bad)
	}
}
