package permission

import (
	"math/rand"
	"testing"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogBits(t *testing.T) {
	expected := map[string]uint8{
		OrganizationUpdate: 0,
		MemberView:         3,
		MemberAdd:          4,
		RoleView:           7,
		DeploymentCreate:   19,
		MobileAppRead:      24,
		BuildUpload:        29,
	}
	for code, bit := range expected {
		p, ok := Lookup(code)
		require.True(t, ok, code)
		assert.Equal(t, bit, p.Bit, code)
	}
}

func TestBitIndependence(t *testing.T) {
	perms := Default().Permissions()
	for _, p := range perms {
		for _, q := range perms {
			if p.Code == q.Code {
				continue
			}
			var empty Set
			assert.False(t, Has(empty.With(p), q.Code), "%s leaked into %s", p.Code, q.Code)

			both := empty.With(p).With(q)
			assert.True(t, Has(both.Without(p), q.Code))
			assert.False(t, Has(both.Without(p), p.Code))
		}
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		mask := Set(rng.Uint64()) & All()
		assert.Equal(t, mask, FromCodes(ToCodes(mask)))
	}

	t.Run("order is stable and follows registration", func(t *testing.T) {
		mask := FromCodes([]string{BuildUpload, OrganizationUpdate, MemberAdd})
		first := ToCodes(mask)
		assert.Equal(t, []string{OrganizationUpdate, MemberAdd, BuildUpload}, first)
		assert.Equal(t, first, ToCodes(mask))
	})

	t.Run("undeclared bits are not encoded", func(t *testing.T) {
		assert.Empty(t, ToCodes(Set(1)<<63))
	})
}

func TestAll(t *testing.T) {
	all := All()
	assert.Equal(t, len(Default().Permissions()), all.Count())
	for _, p := range Default().Permissions() {
		assert.True(t, Has(all, p.Code))
	}
	assert.Zero(t, Default().Normalize(Set(1)<<63|all)&^all)
}

func TestHas(t *testing.T) {
	set := FromCodes([]string{RoleView})
	assert.True(t, Has(set, RoleView))
	assert.False(t, Has(set, RoleCreate))
	assert.False(t, Has(All(), "role.fly"))
	assert.False(t, Has(0, RoleView))
}

func TestFromCodesIgnoresUnknown(t *testing.T) {
	set := FromCodes([]string{MemberView, "member.teleport", ""})
	assert.Equal(t, []string{MemberView}, ToCodes(set))
}

func TestParseCodes(t *testing.T) {
	t.Run("known codes", func(t *testing.T) {
		set, err := ParseCodes([]string{MemberView, MemberAdd})
		require.NoError(t, err)
		assert.Equal(t, 2, set.Count())
	})

	t.Run("unknown codes are rejected", func(t *testing.T) {
		_, err := ParseCodes([]string{MemberView, "member.vew"})
		require.Error(t, err)
		assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
		assert.Contains(t, err.Error(), "member.vew")
	})

	t.Run("empty input is an empty set", func(t *testing.T) {
		set, err := ParseCodes(nil)
		require.NoError(t, err)
		assert.Zero(t, set)
	})
}

func TestNewRegistryValidation(t *testing.T) {
	tests := []struct {
		name string
		defs []Permission
	}{
		{"empty", nil},
		{"bad code", []Permission{{Code: "nodot", Bit: 0}}},
		{"nested code", []Permission{{Code: "a.b.c", Bit: 0}}},
		{"bit out of range", []Permission{{Code: "a.b", Bit: 64}}},
		{"duplicate code", []Permission{{Code: "a.b", Bit: 0}, {Code: "a.b", Bit: 1}}},
		{"duplicate bit", []Permission{{Code: "a.b", Bit: 2}, {Code: "a.c", Bit: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.defs)
			assert.Error(t, err)
		})
	}
}

func TestGrouped(t *testing.T) {
	groups := Default().Grouped()
	require.NotEmpty(t, groups)
	assert.Equal(t, CategoryOrganization, groups[0].Category)
	assert.Equal(t, CategoryBuilds, groups[len(groups)-1].Category)

	total := 0
	for _, g := range groups {
		total += len(g.Permissions)
	}
	assert.Equal(t, len(Default().Permissions()), total)
}

func TestSetStorage(t *testing.T) {
	high := Set(1) << 63
	assert.Equal(t, high, FromInt64(high.Int64()))
	assert.Equal(t, All(), FromInt64(All().Int64()))
	assert.True(t, All().Contains(FromCodes([]string{RoleView, RoleCreate})))
}
