package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sabarim/fxdata/internal/config"
	"github.com/sabarim/fxdata/internal/partition"
	"github.com/sabarim/fxdata/internal/rates"
)

// defaultWindowDays is the trailing window fetched when no range is given
const defaultWindowDays = 30

// Fetcher is the upstream rates source driven by the pipeline
type Fetcher interface {
	FetchDate(ctx context.Context, date time.Time) (*rates.Snapshot, error)
	FetchLatest(ctx context.Context) (*rates.Snapshot, error)
}

// Pipeline fetches rates for a resolved date range and hands the combined
// records to the partition writer in a single pass
type Pipeline struct {
	fetcher      Fetcher
	writer       *partition.Writer
	requestDelay time.Duration
	strict       bool
	log          *logrus.Logger
	now          func() time.Time
}

// New creates a pipeline
func New(fetcher Fetcher, writer *partition.Writer, cfg *config.Config, log *logrus.Logger) *Pipeline {
	return &Pipeline{
		fetcher:      fetcher,
		writer:       writer,
		requestDelay: time.Duration(cfg.Fetch.RequestDelay) * time.Millisecond,
		strict:       cfg.Fetch.Strict,
		log:          log,
		now:          time.Now,
	}
}

// ResolveRange turns the start/end flags into the list of dates to fetch.
// Both given means the inclusive historical range; neither means the
// trailing 30-day window ending today. Giving only one is an error, as is
// an inverted range or a start in the future. No network is touched here.
func ResolveRange(startDate, endDate string, now time.Time) ([]time.Time, error) {
	today := now.UTC()

	if startDate == "" && endDate == "" {
		dates := make([]time.Time, 0, defaultWindowDays)
		for i := defaultWindowDays - 1; i >= 0; i-- {
			dates = append(dates, today.AddDate(0, 0, -i))
		}
		return dates, nil
	}

	if startDate == "" || endDate == "" {
		return nil, fmt.Errorf("historical mode requires both --start-date and --end-date")
	}

	start, err := time.Parse(rates.DateFormat, startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	end, err := time.Parse(rates.DateFormat, endDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}

	if end.Before(start) {
		return nil, fmt.Errorf("end date %s is before start date %s", endDate, startDate)
	}
	if start.Format(rates.DateFormat) > today.Format(rates.DateFormat) {
		return nil, fmt.Errorf("start date %s is in the future", startDate)
	}

	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates, nil
}

// Run fetches and normalizes each date, then writes all partitions once.
// Failed dates are logged and skipped unless strict mode is on; the run
// still returns an error when any date failed so the exit code reflects a
// partial backfill.
func (p *Pipeline) Run(ctx context.Context, dates []time.Time) error {
	var records []partition.Record
	var failed int

	today := p.now().UTC().Format(rates.DateFormat)

	for i, date := range dates {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if i > 0 && p.requestDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.requestDelay):
			}
		}

		day := date.UTC().Format(rates.DateFormat)
		p.log.Debugf("Fetching rates for %s", day)

		var snap *rates.Snapshot
		var err error
		if day == today {
			// Historical files for the current day may not exist yet
			snap, err = p.fetcher.FetchLatest(ctx)
		} else {
			snap, err = p.fetcher.FetchDate(ctx, date)
		}
		if err == nil {
			var rows []partition.Record
			rows, err = partition.NewRecords(snap)
			if err == nil {
				records = append(records, rows...)
				p.log.Infof("Fetched %d rates for %s", len(rows), snap.Date)
				continue
			}
		}

		if p.strict {
			return fmt.Errorf("fetch failed for %s: %w", day, err)
		}
		p.log.WithFields(logrus.Fields{"date": day}).Errorf("Skipping date: %v", err)
		failed++
	}

	if len(records) > 0 {
		if err := p.writer.Write(records); err != nil {
			return err
		}
	} else {
		p.log.Warn("No data retrieved")
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d dates failed to fetch", failed, len(dates))
	}
	return nil
}
