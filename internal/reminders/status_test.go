package reminders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manila(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Manila")
	require.NoError(t, err)
	return loc
}

func TestGenerate(t *testing.T) {
	loc := manila(t)
	day := time.Date(2025, 3, 10, 22, 30, 0, 0, loc)

	list := Generate(day, loc)
	require.Len(t, list, 7)

	wantTitles := []string{
		"Breakfast Time", "Morning Insulin", "Morning Walk", "Lunch Time",
		"Afternoon Activity", "Dinner Time", "Evening Insulin",
	}
	for i, r := range list {
		assert.Equal(t, wantTitles[i], r.Title)
		assert.False(t, r.Read)
		assert.False(t, r.Done)
		assert.Equal(t, 10, r.ScheduledTime.Day())
	}

	assert.Equal(t, "notif-0", list[0].ID)
	assert.Equal(t, "notif-6", list[6].ID)
	assert.Equal(t, CategoryInsulin, list[1].Category)
	assert.Equal(t, "07:00 AM", list[1].Time)
	assert.Equal(t, "07:00 PM", list[6].Time)
	assert.Equal(t, 19, list[6].ScheduledTime.Hour())
}

func TestDeriveStatus(t *testing.T) {
	loc := manila(t)
	insulin := Generate(time.Date(2025, 3, 10, 0, 0, 0, 0, loc), loc)[1]
	at := func(h, m int) time.Time { return time.Date(2025, 3, 10, h, m, 0, 0, loc) }

	tests := []struct {
		name string
		now  time.Time
		want Status
	}{
		{"three minutes after", at(7, 3), StatusCurrent},
		{"exactly on time", at(7, 0), StatusCurrent},
		{"window start inclusive", at(6, 45), StatusCurrent},
		{"window end inclusive", at(7, 15), StatusCurrent},
		{"twenty minutes after", at(7, 20), StatusMissed},
		{"just before window", at(6, 44), StatusUpcoming},
		{"early morning", at(5, 0), StatusUpcoming},
		{"late evening", at(23, 0), StatusMissed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(insulin, tt.now, loc, DefaultCurrentWindow))
		})
	}
}

func TestDeriveStatusCompletedWins(t *testing.T) {
	loc := manila(t)
	r := Generate(time.Now(), loc)[1]
	r.Done = true

	for h := 0; h < 24; h++ {
		now := time.Date(2025, 3, 10, h, 0, 0, 0, loc)
		assert.Equal(t, StatusCompleted, DeriveStatus(r, now, loc, DefaultCurrentWindow))
	}
}

func TestDeriveStatusIgnoresStoredDate(t *testing.T) {
	loc := manila(t)
	r := Generate(time.Date(2024, 1, 1, 0, 0, 0, 0, loc), loc)[1]

	now := time.Date(2025, 6, 15, 7, 5, 0, 0, loc)
	assert.Equal(t, StatusCurrent, DeriveStatus(r, now, loc, DefaultCurrentWindow))
}

func TestDeriveStatusEvaluatesInLocation(t *testing.T) {
	loc := manila(t)
	r := Generate(time.Date(2025, 3, 10, 0, 0, 0, 0, loc), loc)[1]

	// 23:02 UTC is 07:02 the next day in Manila
	now := time.Date(2025, 3, 10, 23, 2, 0, 0, time.UTC)
	assert.Equal(t, StatusCurrent, DeriveStatus(r, now, loc, DefaultCurrentWindow))
}

func TestFilterByCategoryPreservesOrder(t *testing.T) {
	list := Generate(time.Now(), time.UTC)

	meals := FilterByCategory(list, CategoryMeal)
	require.Len(t, meals, 3)
	assert.Equal(t, []string{"notif-0", "notif-3", "notif-5"}, []string{meals[0].ID, meals[1].ID, meals[2].ID})

	activity := FilterByCategory(list, CategoryActivity)
	require.Len(t, activity, 2)
	assert.Equal(t, "notif-2", activity[0].ID)
	assert.Equal(t, "notif-4", activity[1].ID)

	assert.Len(t, FilterByCategory(list, CategoryAll), 7)
	assert.Empty(t, FilterByCategory(nil, CategoryMeal))
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("")
	require.NoError(t, err)
	assert.Equal(t, CategoryAll, c)

	c, err = ParseCategory("insulin")
	require.NoError(t, err)
	assert.Equal(t, CategoryInsulin, c)

	_, err = ParseCategory("sleep")
	assert.Error(t, err)
}

func TestCountUnread(t *testing.T) {
	list := Generate(time.Now(), time.UTC)
	list[0].Read = true
	list[1].Done = true
	list[1].Read = true
	assert.Equal(t, 5, CountUnread(list))
}

func TestDecodeReminders(t *testing.T) {
	t.Run("accepts device format", func(t *testing.T) {
		data := `[{"id":"notif-1","type":"insulin","title":"Morning Insulin","message":"Take your morning insulin dose","time":"07:00 AM","isRead":false,"isDone":true,"scheduledTime":"2025-03-09T23:00:00.000Z"}]`
		list, err := decodeReminders([]byte(data))
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, list[0].Read, "done implies read")
		assert.Equal(t, 7, list[0].ScheduledTime.In(manila(t)).Hour())
	})

	bad := map[string]string{
		"not json":         `{`,
		"missing id":       `[{"type":"meal","scheduledTime":"2025-03-09T23:00:00Z"}]`,
		"unknown type":     `[{"id":"a","type":"sleep","scheduledTime":"2025-03-09T23:00:00Z"}]`,
		"missing schedule": `[{"id":"a","type":"meal"}]`,
		"bad schedule":     `[{"id":"a","type":"meal","scheduledTime":"tomorrow"}]`,
		"duplicate id":     `[{"id":"a","type":"meal","scheduledTime":"2025-03-09T23:00:00Z"},{"id":"a","type":"meal","scheduledTime":"2025-03-09T23:00:00Z"}]`,
	}
	for name, data := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := decodeReminders([]byte(data))
			assert.Error(t, err)
		})
	}
}
