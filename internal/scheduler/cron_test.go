package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextDueUtc_DailyMidnight(t *testing.T) {
	from := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	next, err := NextDueUtc("0 0 * * *", from)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), next)
}

func TestNextDueUtc_InvalidExpressionErrors(t *testing.T) {
	_, err := NextDueUtc("not a cron expression", time.Now())
	require.Error(t, err)
}
