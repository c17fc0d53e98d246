package pipeline

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Progress receives per-provider call progress of running operations.
// Implementations must be safe for concurrent use.
type Progress interface {
	Start(operationID, providerName string, total int)
	Advance(operationID, providerName string)
}

type noProgress struct{}

func (noProgress) Start(string, string, int) {}
func (noProgress) Advance(string, string)    {}

type ProgressConfig struct {
	Enabled bool
	Writer  io.Writer
}

// BarProgress renders one terminal bar per (operation, provider).
type BarProgress struct {
	container *mpb.Progress
	enabled   bool

	mu   sync.Mutex
	bars map[string]*mpb.Bar
}

var _ Progress = (*BarProgress)(nil)

func NewBarProgress(config ProgressConfig) *BarProgress {
	if !config.Enabled {
		return &BarProgress{enabled: false}
	}

	writer := config.Writer
	if writer == nil {
		writer = os.Stderr
	}

	container := mpb.New(
		mpb.WithOutput(writer),
		mpb.WithRefreshRate(120*time.Millisecond),
	)

	return &BarProgress{
		container: container,
		enabled:   true,
		bars:      make(map[string]*mpb.Bar),
	}
}

func barKey(operationID, providerName string) string {
	return operationID + "/" + providerName
}

// Start adds a bar of total segments for providerName.
func (bp *BarProgress) Start(operationID, providerName string, total int) {
	if !bp.enabled {
		return
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	description := providerName
	bar := bp.container.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(description+" ", decor.WC{W: len(description) + 1, C: decor.DindentRight}),
			decor.CountersNoUnit("(%d/%d)", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.NewPercentage("%.1f", decor.WCSyncSpace),
			decor.OnComplete(
				decor.AverageETA(decor.ET_STYLE_GO, decor.WCSyncWidth), " ✓ ",
			),
		),
	)
	bp.bars[barKey(operationID, providerName)] = bar
}

// Advance marks one more segment of providerName done.
func (bp *BarProgress) Advance(operationID, providerName string) {
	if !bp.enabled {
		return
	}

	bp.mu.Lock()
	bar := bp.bars[barKey(operationID, providerName)]
	bp.mu.Unlock()
	if bar != nil {
		bar.Increment()
	}
}

// Wait completes every bar, including ones cut short by a failure, and
// flushes the output.
func (bp *BarProgress) Wait() {
	if !bp.enabled || bp.container == nil {
		return
	}

	bp.mu.Lock()
	for _, bar := range bp.bars {
		if !bar.Completed() {
			bar.Abort(false)
		}
	}
	bp.mu.Unlock()
	bp.container.Wait()
}
