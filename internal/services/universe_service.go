package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/epeers/netnet/internal/models"
	"github.com/epeers/netnet/internal/util"
)

// ListedInfoSource lists the issues listed on a date.
type ListedInfoSource interface {
	ListedInfo(ctx context.Context, date time.Time) ([]models.ListedIssue, error)
}

// UniverseService builds the ticker universe for a set of analysis dates,
// caching one ticker file per date under <dataDir>/tickers.
type UniverseService struct {
	source ListedInfoSource
	dir    string
}

// NewUniverseService creates a new UniverseService
func NewUniverseService(source ListedInfoSource, dataDir string) *UniverseService {
	return &UniverseService{
		source: source,
		dir:    filepath.Join(dataDir, "tickers"),
	}
}

// TickerFilePath is where the universe for date is cached.
func (s *UniverseService) TickerFilePath(date time.Time) string {
	return filepath.Join(s.dir, fmt.Sprintf("jquant_tickers_%s.txt", util.FileDate(date)))
}

// ForDate returns the tickers listed on date, reading the cached file when
// one exists.
func (s *UniverseService) ForDate(ctx context.Context, date time.Time) ([]models.Ticker, error) {
	path := s.TickerFilePath(date)
	tickers, err := LoadTickerFile(path)
	if err == nil {
		log.Debugf("Using cached universe %s (%d tickers)", filepath.Base(path), len(tickers))
		return tickers, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if s.source == nil {
		return nil, fmt.Errorf("no cached universe for %s and no listed-info source", util.FormatDate(date))
	}

	issues, err := s.source.ListedInfo(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues for %s: %w", util.FormatDate(date), err)
	}
	tickers = make([]models.Ticker, 0, len(issues))
	for _, is := range issues {
		tickers = append(tickers, is.Ticker)
	}
	tickers = models.DedupeTickers(tickers)

	if err := WriteTickerFile(path, tickers); err != nil {
		return nil, err
	}
	log.Infof("Cached universe for %s: %d tickers", util.FormatDate(date), len(tickers))
	return tickers, nil
}

// ForDates returns the union of the universes of every date.
func (s *UniverseService) ForDates(ctx context.Context, dates []time.Time) ([]models.Ticker, error) {
	defer TrackTime("UniverseService.ForDates", time.Now())
	lists := make([][]models.Ticker, 0, len(dates))
	for _, d := range dates {
		tickers, err := s.ForDate(ctx, d)
		if err != nil {
			return nil, err
		}
		lists = append(lists, tickers)
	}
	return MergeUniverse(lists...), nil
}

// ParseTickerList reads tickers separated by newlines, commas or spaces.
// Blank tokens are ignored, invalid ones are logged and dropped, and
// duplicates keep their first position.
func ParseTickerList(r io.Reader) ([]models.Ticker, error) {
	var tickers []models.Ticker
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		tokens := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		for _, tok := range tokens {
			t, err := models.NormalizeTicker(tok)
			if err != nil {
				log.Warnf("Ignoring ticker on line %d: %v", line, err)
				continue
			}
			tickers = append(tickers, t)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ticker list: %w", err)
	}
	return models.DedupeTickers(tickers), nil
}

// LoadTickerFile reads a ticker list from path.
func LoadTickerFile(path string) ([]models.Ticker, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseTickerList(f)
}

// WriteTickerFile writes one ticker per line, replacing path atomically.
func WriteTickerFile(path string, tickers []models.Ticker) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	var b strings.Builder
	for _, t := range tickers {
		b.WriteString(string(t))
		b.WriteByte('\n')
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// MergeUniverse unions the lists into one sorted list.
func MergeUniverse(lists ...[]models.Ticker) []models.Ticker {
	seen := make(map[models.Ticker]struct{})
	var out []models.Ticker
	for _, l := range lists {
		for _, t := range l {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
