package partition

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabarim/fxdata/internal/rates"
)

func snapshotFor(date string, rateMap map[string]float64) *rates.Snapshot {
	return &rates.Snapshot{
		Date:        date,
		Base:        "USD",
		Rates:       rateMap,
		APIVersion:  "v1",
		RetrievedAt: time.Date(2024, 2, 18, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewRecordsSunday(t *testing.T) {
	records, err := NewRecords(snapshotFor("2024-02-18", map[string]float64{"EUR": 1.12, "GBP": 0.85}))
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Ordered by currency code
	assert.Equal(t, "EUR", records[0].Currency)
	assert.Equal(t, "GBP", records[1].Currency)
	assert.Equal(t, 1.12, records[0].ExchangeRate)
	assert.Equal(t, 0.85, records[1].ExchangeRate)

	for _, record := range records {
		assert.Equal(t, "2024-02-18", record.Date)
		assert.Equal(t, "USD", record.BaseCurrency)
		assert.Equal(t, int32(2024), record.Year)
		assert.Equal(t, int32(2), record.Month)
		assert.Equal(t, "Sunday", record.DayOfWeek)
		assert.True(t, record.IsWeekend)
		assert.Equal(t, "v1", record.SourceAPIVersion)
		assert.Equal(t, "2024-02-18 12:00:00", record.RetrievalTime)
	}
}

func TestWeekendDerivation(t *testing.T) {
	// 2024-02-12 is a Monday, so this spans a full week
	for i := 0; i < 7; i++ {
		day := time.Date(2024, 2, 12+i, 0, 0, 0, 0, time.UTC)
		records, err := NewRecords(snapshotFor(day.Format(rates.DateFormat), map[string]float64{"EUR": 1.1}))
		require.NoError(t, err)
		require.Len(t, records, 1)

		record := records[0]
		wantWeekend := day.Weekday() == time.Saturday || day.Weekday() == time.Sunday
		assert.Equal(t, wantWeekend, record.IsWeekend, "date %s", record.Date)
		assert.Equal(t, day.Weekday().String(), record.DayOfWeek)
		assert.Equal(t, int32(day.Year()), record.Year)
		assert.Equal(t, int32(day.Month()), record.Month)
	}
}

func TestRecordIDDeterministic(t *testing.T) {
	first := RecordID("2024-02-18", "USD", "EUR")
	second := RecordID("2024-02-18", "USD", "EUR")
	assert.Equal(t, first, second)

	assert.NotEqual(t, first, RecordID("2024-02-18", "USD", "GBP"))
	assert.NotEqual(t, first, RecordID("2024-02-19", "USD", "EUR"))
	assert.NotEqual(t, first, RecordID("2024-02-18", "EUR", "EUR"))
}

func TestNewRecordsIDsMatchNaturalKey(t *testing.T) {
	records, err := NewRecords(snapshotFor("2024-02-18", map[string]float64{"EUR": 1.12}))
	require.NoError(t, err)
	assert.Equal(t, RecordID("2024-02-18", "USD", "EUR"), records[0].ID)
}

func TestNewRecordsValidation(t *testing.T) {
	cases := []struct {
		name string
		snap *rates.Snapshot
	}{
		{"bad date", snapshotFor("18-02-2024", map[string]float64{"EUR": 1.1})},
		{"no rates", snapshotFor("2024-02-18", map[string]float64{})},
		{"empty currency code", snapshotFor("2024-02-18", map[string]float64{"": 1.1})},
		{"nan rate", snapshotFor("2024-02-18", map[string]float64{"EUR": math.NaN()})},
		{"inf rate", snapshotFor("2024-02-18", map[string]float64{"EUR": math.Inf(1)})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRecords(tc.snap)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
		})
	}

	t.Run("missing base", func(t *testing.T) {
		snap := snapshotFor("2024-02-18", map[string]float64{"EUR": 1.1})
		snap.Base = ""
		_, err := NewRecords(snap)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
	})
}
