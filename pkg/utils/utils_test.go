package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	ID       string `validate:"required"`
	Source   string `validate:"omitempty,known_source"`
	MaxItems int    `validate:"min=0,max=20"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(sampleRequest{ID: "g1", Source: "arxiv"}))
	assert.NoError(t, ValidateStruct(sampleRequest{ID: "g1"}))

	err := ValidateStruct(sampleRequest{Source: "myspace", MaxItems: 50})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id is required")
	assert.Contains(t, err.Error(), "source is not a supported research source")
	assert.Contains(t, err.Error(), "maxitems must be at most 20")
}

func TestDayKey(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 08:30 JST on the 2nd is still the 1st in UTC.
	assert.Equal(t, "2025-03-01", DayKey(time.Date(2025, 3, 2, 8, 30, 0, 0, tokyo)))
	assert.Equal(t, "2025-03-02", DayKey(time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)))
}
