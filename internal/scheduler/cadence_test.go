package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

func TestHourlyDue(t *testing.T) {
	c := Hourly()

	// Слот 14:00 попадает в (13:59, 14:05]
	slot, due := c.Due(ts("2026-03-10T13:59:00Z"), ts("2026-03-10T14:05:00Z"), time.UTC)
	require.True(t, due)
	assert.Equal(t, ts("2026-03-10T14:00:00Z"), slot)

	// Watermark уже на слоте — повтора нет
	_, due = c.Due(ts("2026-03-10T14:00:00Z"), ts("2026-03-10T14:05:00Z"), time.UTC)
	assert.False(t, due)
}

func TestHourlyCatchUpIsSingleOccurrence(t *testing.T) {
	c := Hourly()

	// Воркер лежал 5 часов: наверстывается только последний слот
	slot, due := c.Due(ts("2026-03-10T09:30:00Z"), ts("2026-03-10T14:05:00Z"), time.UTC)
	require.True(t, due)
	assert.Equal(t, ts("2026-03-10T14:00:00Z"), slot)
}

func TestDailyAt(t *testing.T) {
	c := DailyAt(6, 0)

	slot, due := c.Due(ts("2026-03-10T05:00:00Z"), ts("2026-03-10T06:30:00Z"), time.UTC)
	require.True(t, due)
	assert.Equal(t, ts("2026-03-10T06:00:00Z"), slot)

	// До 06:00 — актуален вчерашний слот, и он уже за watermark'ом
	_, due = c.Due(ts("2026-03-09T07:00:00Z"), ts("2026-03-10T05:00:00Z"), time.UTC)
	assert.False(t, due)
}

func TestWeeklyOn(t *testing.T) {
	c := WeeklyOn(time.Monday, 7, 0)

	// 2026-03-09 — понедельник
	slot, due := c.Due(ts("2026-03-08T00:00:00Z"), ts("2026-03-09T08:00:00Z"), time.UTC)
	require.True(t, due)
	assert.Equal(t, ts("2026-03-09T07:00:00Z"), slot)
	assert.Equal(t, time.Monday, slot.Weekday())

	// Среда: последний слот — прошедший понедельник, watermark его уже покрыл
	_, due = c.Due(ts("2026-03-09T08:00:00Z"), ts("2026-03-11T12:00:00Z"), time.UTC)
	assert.False(t, due)
}

func TestMonthlyOn(t *testing.T) {
	c := MonthlyOn(1, 8, 0)

	slot, due := c.Due(ts("2026-02-15T00:00:00Z"), ts("2026-03-01T09:00:00Z"), time.UTC)
	require.True(t, due)
	assert.Equal(t, ts("2026-03-01T08:00:00Z"), slot)

	// До 1-го числа 08:00 — слот прошлого месяца
	slot, due = c.Due(ts("2026-01-20T00:00:00Z"), ts("2026-02-20T00:00:00Z"), time.UTC)
	require.True(t, due)
	assert.Equal(t, ts("2026-02-01T08:00:00Z"), slot)
}

func TestFirstRunFiresLatestSlotOnly(t *testing.T) {
	// Нулевой watermark (первый запуск): один последний слот, не вся история
	slot, due := Hourly().Due(time.Time{}, ts("2026-03-10T14:30:00Z"), time.UTC)
	require.True(t, due)
	assert.Equal(t, ts("2026-03-10T14:00:00Z"), slot)
}
