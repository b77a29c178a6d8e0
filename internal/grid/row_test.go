package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRow_Values(t *testing.T) {
	r := &Row{ID: "a"}
	_, ok := r.Value("pop")
	assert.False(t, ok)

	r.Set("pop", 3)
	r.Set("area", 1)
	v, ok := r.Value("pop")
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)
	assert.Equal(t, []string{"area", "pop"}, r.Columns())

	r.Drop("pop", "missing")
	assert.Equal(t, []string{"area"}, r.Columns())
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"DE1", "DE1"},
		{"DE1-2011", "DE1"},
		{" FR ", "FR"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCode(tt.in))
		})
	}
}

func TestRegionFilter_Match(t *testing.T) {
	regions := [RegionLevels]string{"DE", "DE1", "DE11", "DE111"}

	assert.True(t, RegionFilter(nil).Match(regions))
	assert.True(t, RegionFilter{"DE11"}.Match(regions))
	assert.True(t, RegionFilter{"FR", "DE"}.Match(regions))
	assert.False(t, RegionFilter{"FR"}.Match(regions))
	assert.False(t, RegionFilter{""}.Match([RegionLevels]string{}))
}

func TestValidateRegions(t *testing.T) {
	assert.NoError(t, ValidateRegions([RegionLevels]string{"DE", "DE1", "DE11", "DE111"}))
	assert.NoError(t, ValidateRegions([RegionLevels]string{"DE", "", "DE11", ""}))

	err := ValidateRegions([RegionLevels]string{"DE", "FR1", "", ""})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "FR1")
}
