package partition

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// ErrSchema indicates an existing partition file could not be read with the
// current record schema.
var ErrSchema = errors.New("incompatible partition schema")

// FileName is the parquet file name inside each partition directory
const FileName = "exchange_rates.parquet"

type partitionKey struct {
	Year  int32
	Month int32
}

// Writer merges rate records into month-partitioned parquet files
type Writer struct {
	savePath string
	log      *logrus.Logger
}

// NewWriter creates a partition writer rooted at savePath. The directory is
// created up front so an unwritable output location fails before any fetch.
func NewWriter(savePath string, log *logrus.Logger) (*Writer, error) {
	if err := os.MkdirAll(savePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create save path: %w", err)
	}
	return &Writer{savePath: savePath, log: log}, nil
}

// Dir returns the directory holding one (year, month) partition
func (w *Writer) Dir(year, month int32) string {
	return filepath.Join(w.savePath, fmt.Sprintf("year=%d", year), fmt.Sprintf("month=%d", month))
}

// Write merges the records into their (year, month) partitions. Each
// partition is loaded, merged by natural key with last-write-wins, and
// replaced atomically. Partitions are processed independently, so a failure
// on one does not touch the others.
func (w *Writer) Write(records []Record) error {
	byPartition := make(map[partitionKey][]Record)
	for _, record := range records {
		key := partitionKey{Year: record.Year, Month: record.Month}
		byPartition[key] = append(byPartition[key], record)
	}

	keys := make([]partitionKey, 0, len(byPartition))
	for key := range byPartition {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Year != keys[j].Year {
			return keys[i].Year < keys[j].Year
		}
		return keys[i].Month < keys[j].Month
	})

	var errs []error
	for _, key := range keys {
		if err := w.writePartition(key, byPartition[key]); err != nil {
			errs = append(errs, fmt.Errorf("partition %d-%02d: %w", key.Year, key.Month, err))
			continue
		}
		w.log.Infof("Wrote %d records to partition %d-%02d", len(byPartition[key]), key.Year, key.Month)
	}

	return errors.Join(errs...)
}

// Read loads the records currently stored for one (year, month) partition.
// A partition that was never written is empty.
func (w *Writer) Read(year, month int32) ([]Record, error) {
	return readPartition(filepath.Join(w.Dir(year, month), FileName))
}

// writePartition merges new records into one partition file and replaces it
// atomically (write to temp, then rename).
func (w *Writer) writePartition(key partitionKey, records []Record) error {
	dir := w.Dir(key.Year, key.Month)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create partition directory: %w", err)
	}

	target := filepath.Join(dir, FileName)

	existing, err := readPartition(target)
	if err != nil {
		return err
	}

	merged := make(map[Key]Record, len(existing)+len(records))
	for _, record := range existing {
		merged[record.Key()] = record
	}
	for _, record := range records {
		merged[record.Key()] = record
	}

	rows := make([]Record, 0, len(merged))
	for _, record := range merged {
		rows = append(rows, record)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		return rows[i].Currency < rows[j].Currency
	})

	tmp := target + ".tmp"
	if err := writeRows(tmp, rows); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace partition file: %w", err)
	}

	return nil
}

// readPartition loads all records from an existing partition file. A missing
// file is an empty partition, not an error.
func readPartition(path string) ([]Record, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat partition file: %w", err)
	}

	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open partition file: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(Record), 4)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	defer pr.ReadStop()

	num := int(pr.GetNumRows())
	records := make([]Record, num)
	if err := pr.Read(&records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	return records, nil
}

// writeRows writes records to a parquet file with gzip compression
func writeRows(path string, rows []Record) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(Record), 4)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	pw.CompressionType = parquet.CompressionCodec_GZIP
	pw.RowGroupSize = 128 * 1024 * 1024 // 128MB row groups
	pw.PageSize = 8 * 1024              // 8KB pages

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("failed to write parquet data: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}

	return nil
}
