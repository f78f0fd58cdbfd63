package output

import (
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/epeers/netnet/internal/util"
)

var perfColumns = []string{"analysis_date", "semaphore_limit", "tickers_processed", "duration_seconds", "tickers_per_minute"}

// PerfRow is one throughput sample.
type PerfRow struct {
	AnalysisDate     time.Time
	SemaphoreLimit   int
	TickersProcessed int64
	Duration         time.Duration
}

// TickersPerMinute is the average throughput of the sample.
func (r PerfRow) TickersPerMinute() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.TickersProcessed) / r.Duration.Minutes()
}

// PerfLog appends throughput samples to performance_<timestamp>.csv.
type PerfLog struct {
	path string
	mu   sync.Mutex
}

// NewPerfLog creates a log file name stamped with started.
func NewPerfLog(dir string, started time.Time) *PerfLog {
	return &PerfLog{path: filepath.Join(dir, fmt.Sprintf("performance_%s.csv", started.Format("20060102_150405")))}
}

// Path returns the log file path.
func (p *PerfLog) Path() string {
	return p.path
}

// Record appends one sample.
func (p *PerfLog) Record(r PerfRow) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return appendRecords(p.path, perfColumns, [][]string{{
		util.FormatDate(r.AnalysisDate),
		strconv.Itoa(r.SemaphoreLimit),
		strconv.FormatInt(r.TickersProcessed, 10),
		strconv.FormatFloat(r.Duration.Seconds(), 'f', 2, 64),
		strconv.FormatFloat(r.TickersPerMinute(), 'f', 2, 64),
	}})
}
