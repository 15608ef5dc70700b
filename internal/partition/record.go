package partition

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sabarim/fxdata/internal/rates"
)

// ErrValidation indicates a raw snapshot contained data that cannot be
// turned into valid records.
var ErrValidation = errors.New("invalid rate data")

// Record represents a single exchange rate row in a partition file
type Record struct {
	ID               string  `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Date             string  `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	BaseCurrency     string  `parquet:"name=base_currency, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Currency         string  `parquet:"name=currency, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ExchangeRate     float64 `parquet:"name=exchange_rate, type=DOUBLE, encoding=PLAIN"`
	RetrievalTime    string  `parquet:"name=retrieval_time, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	SourceAPIVersion string  `parquet:"name=source_api_version, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	DayOfWeek        string  `parquet:"name=day_of_week, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	IsWeekend        bool    `parquet:"name=is_weekend, type=BOOLEAN"`
	Year             int32   `parquet:"name=year, type=INT32, encoding=PLAIN_DICTIONARY"`
	Month            int32   `parquet:"name=month, type=INT32, encoding=PLAIN_DICTIONARY"`
}

// Key is the natural key identifying a logical record independent of its id
type Key struct {
	Date         string
	BaseCurrency string
	Currency     string
}

// Key returns the record's natural key
func (r Record) Key() Key {
	return Key{Date: r.Date, BaseCurrency: r.BaseCurrency, Currency: r.Currency}
}

// RecordID derives the record id from the natural key. Re-fetching the same
// date always yields the same ids, which keeps merges idempotent.
func RecordID(date, base, currency string) string {
	sum := sha256.Sum256([]byte(date + "_" + base + "_" + currency))
	return hex.EncodeToString(sum[:])
}

// NewRecords normalizes a raw snapshot into one record per quote currency,
// ordered by currency code. Pure transformation, no I/O.
func NewRecords(snap *rates.Snapshot) ([]Record, error) {
	day, err := time.Parse(rates.DateFormat, snap.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q: %v", ErrValidation, snap.Date, err)
	}
	if snap.Base == "" {
		return nil, fmt.Errorf("%w: missing base currency for %s", ErrValidation, snap.Date)
	}
	if len(snap.Rates) == 0 {
		return nil, fmt.Errorf("%w: no rates for %s", ErrValidation, snap.Date)
	}

	weekday := day.Weekday()
	isWeekend := weekday == time.Saturday || weekday == time.Sunday
	retrieval := snap.RetrievedAt.UTC().Format("2006-01-02 15:04:05")

	currencies := make([]string, 0, len(snap.Rates))
	for currency := range snap.Rates {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)

	records := make([]Record, 0, len(currencies))
	for _, currency := range currencies {
		rate := snap.Rates[currency]
		if currency == "" {
			return nil, fmt.Errorf("%w: empty currency code for %s", ErrValidation, snap.Date)
		}
		if math.IsNaN(rate) || math.IsInf(rate, 0) {
			return nil, fmt.Errorf("%w: non-finite rate for %s/%s on %s", ErrValidation, snap.Base, currency, snap.Date)
		}

		records = append(records, Record{
			ID:               RecordID(snap.Date, snap.Base, currency),
			Date:             snap.Date,
			BaseCurrency:     snap.Base,
			Currency:         currency,
			ExchangeRate:     rate,
			RetrievalTime:    retrieval,
			SourceAPIVersion: snap.APIVersion,
			DayOfWeek:        weekday.String(),
			IsWeekend:        isWeekend,
			Year:             int32(day.Year()),
			Month:            int32(day.Month()),
		})
	}

	return records, nil
}
