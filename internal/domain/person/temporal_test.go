package person

import (
	"errors"
	"testing"
	"time"

	"github.com/persona/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTemporalValidity_IsValidAt(t *testing.T) {
	tv, err := NewTemporalValidity(t0, ptr(date(2020, 1, 1)), ptr(date(2021, 1, 1)))
	require.NoError(t, err)

	assert.True(t, tv.IsValidAt(date(2020, 6, 1)))
	assert.True(t, tv.IsValidAt(date(2020, 1, 1)), "start is inclusive")
	assert.False(t, tv.IsValidAt(date(2021, 1, 1)), "end is exclusive")
	assert.False(t, tv.IsValidAt(date(2019, 12, 31)))

	open := TemporalValidity{RecordedAt: t0}
	assert.True(t, open.IsValidAt(date(1900, 1, 1)))
	assert.True(t, open.IsOpenEnded())
}

func TestNewTemporalValidity_RejectsInvertedBounds(t *testing.T) {
	_, err := NewTemporalValidity(t0, ptr(date(2021, 1, 1)), ptr(date(2020, 1, 1)))
	var ve *shared.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "valid_until", ve.Field)

	_, err = NewTemporalValidity(t0, ptr(date(2020, 1, 1)), ptr(date(2020, 1, 1)))
	assert.Error(t, err)
}

func TestTemporalValidity_ClosedAt(t *testing.T) {
	tv := TemporalValidity{RecordedAt: t0}
	closed := tv.ClosedAt(date(2024, 1, 1))
	assert.Nil(t, tv.ValidUntil, "original unchanged")
	require.NotNil(t, closed.ValidUntil)
	assert.Equal(t, date(2024, 1, 1), *closed.ValidUntil)

	again := closed.ClosedAt(date(2025, 1, 1))
	assert.Equal(t, date(2024, 1, 1), *again.ValidUntil, "earlier end kept")
}
