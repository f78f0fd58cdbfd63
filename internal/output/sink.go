// Package output writes screening artifacts: the per-date net-net CSV, the
// missing-price log, the skip log and the performance log.
package output

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/epeers/netnet/internal/models"
	"github.com/epeers/netnet/internal/util"
)

// ResultsPath is the screening CSV for date under dir.
func ResultsPath(dir string, date time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("tse_netnets_%s.csv", util.FormatDate(date)))
}

// ResultDates returns the dates that have a results file under dir, newest first.
func ResultDates(dir string) ([]time.Time, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "tse_netnets_*.csv"))
	if err != nil {
		return nil, err
	}
	var dates []time.Time
	for _, m := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "tse_netnets_"), ".csv")
		d, err := util.ParseDate(name)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	return dates, nil
}

// NoPricePath is the missing-price log for date under dir.
func NoPricePath(dir string, date time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("no_ohlc_found_%s.txt", util.FormatDate(date)))
}

// SkipsPath is the skip log for date under dir.
func SkipsPath(dir string, date time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("skipped_%s.csv", util.FormatDate(date)))
}

var skipColumns = []string{"ticker", "reason", "detail"}

// Sink appends screening output. Every file is written under one lock, the
// header is written exactly once per file, and a ticker is written at most
// once per results file, including rows left by an earlier run.
type Sink struct {
	dir string

	mu      sync.Mutex
	written map[string]map[models.Ticker]bool
	noPrice map[string]map[models.Ticker]bool
	skipped map[string]map[skipKey]bool
}

type skipKey struct {
	ticker models.Ticker
	code   string
}

// NewSink creates a Sink writing into dir.
func NewSink(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &Sink{
		dir:     dir,
		written: make(map[string]map[models.Ticker]bool),
		noPrice: make(map[string]map[models.Ticker]bool),
		skipped: make(map[string]map[skipKey]bool),
	}, nil
}

// Dir returns the output directory.
func (s *Sink) Dir() string {
	return s.dir
}

// WriteResult appends r to its date's results file. It reports false when
// the ticker already has a row for that date.
func (s *Sink) WriteResult(r models.ScreeningResult) (bool, error) {
	path := ResultsPath(s.dir, r.AnalysisDate)

	s.mu.Lock()
	defer s.mu.Unlock()

	seen, err := s.writtenFor(path)
	if err != nil {
		return false, err
	}
	if seen[r.Ticker] {
		return false, nil
	}
	if err := appendRecords(path, ResultColumns, [][]string{ResultRecord(r)}); err != nil {
		return false, err
	}
	seen[r.Ticker] = true
	return true, nil
}

// RowCount returns how many tickers the results file for date holds.
func (s *Sink) RowCount(date time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen, err := s.writtenFor(ResultsPath(s.dir, date))
	if err != nil {
		return 0, err
	}
	return len(seen), nil
}

// writtenFor loads the tickers already present in path. Caller holds s.mu.
func (s *Sink) writtenFor(path string) (map[models.Ticker]bool, error) {
	if seen, ok := s.written[path]; ok {
		return seen, nil
	}
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	seen := make(map[models.Ticker]bool, len(rows))
	for _, rec := range rows {
		if len(rec) > 0 && rec[0] != "" {
			seen[models.Ticker(rec[0])] = true
		}
	}
	if len(rows) > 0 {
		log.Debugf("Resuming %s with %d existing rows", filepath.Base(path), len(seen))
	}
	s.written[path] = seen
	return seen, nil
}

// skippedFor loads the (ticker, code) pairs already present in path. Caller holds s.mu.
func (s *Sink) skippedFor(path string) (map[skipKey]bool, error) {
	if seen, ok := s.skipped[path]; ok {
		return seen, nil
	}
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	seen := make(map[skipKey]bool, len(rows))
	for _, rec := range rows {
		if len(rec) >= 2 {
			seen[skipKey{models.Ticker(rec[0]), rec[1]}] = true
		}
	}
	s.skipped[path] = seen
	return seen, nil
}

// readRows returns the data rows of the CSV at path, without its header.
// A missing file has no rows.
func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows [][]string
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if first {
			first = false
			continue
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// LogNoPrice records a ticker for which no price was found on or before date.
func (s *Sink) LogNoPrice(t models.Ticker, date time.Time) error {
	path := NoPricePath(s.dir, date)

	s.mu.Lock()
	defer s.mu.Unlock()

	seen, ok := s.noPrice[path]
	if !ok {
		seen = make(map[models.Ticker]bool)
		if data, err := os.ReadFile(path); err == nil {
			sc := bufio.NewScanner(bytes.NewReader(data))
			for sc.Scan() {
				seen[models.Ticker(sc.Text())] = true
			}
		}
		s.noPrice[path] = seen
	}
	if seen[t] {
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, t); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	seen[t] = true
	return nil
}

// WriteSkips appends skip records for date. A (ticker, code) pair already
// in the file is not written again.
func (s *Sink) WriteSkips(date time.Time, skips []models.Skip) error {
	if len(skips) == 0 {
		return nil
	}
	path := SkipsPath(s.dir, date)

	s.mu.Lock()
	defer s.mu.Unlock()

	seen, err := s.skippedFor(path)
	if err != nil {
		return err
	}
	var records [][]string
	var added []skipKey
	for _, sk := range skips {
		key := skipKey{sk.Ticker, string(sk.Code)}
		if seen[key] {
			continue
		}
		seen[key] = true
		added = append(added, key)
		records = append(records, []string{string(sk.Ticker), string(sk.Code), sk.Message})
	}
	if len(records) == 0 {
		return nil
	}
	if err := appendRecords(path, skipColumns, records); err != nil {
		for _, key := range added {
			delete(seen, key)
		}
		return err
	}
	return nil
}

// appendRecords appends records to path, writing header first if the file is new or empty.
func appendRecords(path string, header []string, records [][]string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
