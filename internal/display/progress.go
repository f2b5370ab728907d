package display

import (
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ramonehamilton/duelmeta/internal/events"
)

// ProgressObserver drives a progress bar from batch unit events.
type ProgressObserver struct {
	mu  sync.Mutex
	w   io.Writer
	bar *progressbar.ProgressBar
}

// NewProgressObserver creates an observer that draws to w. The bar is
// created on the first unit event, once the total is known.
func NewProgressObserver(w io.Writer) *ProgressObserver {
	return &ProgressObserver{w: w}
}

func (o *ProgressObserver) newBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(o.w),
		progressbar.OptionSetDescription("Tournaments"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "|",
			BarEnd:        "|",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// OnEvent advances the bar to the processed count.
func (o *ProgressObserver) OnEvent(event events.Event) error {
	data, ok := events.GetTypedData[events.UnitProcessedEvent](event)
	if !ok {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.bar == nil {
		o.bar = o.newBar(data.Total)
	}
	o.bar.Describe(data.Name)
	return o.bar.Set(data.Processed)
}

// Finish completes and clears the bar.
func (o *ProgressObserver) Finish() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.bar == nil {
		return nil
	}
	return o.bar.Finish()
}

// GetName returns the observer's name.
func (o *ProgressObserver) GetName() string {
	return "ProgressObserver"
}

// ShouldHandle accepts unit events only.
func (o *ProgressObserver) ShouldHandle(eventType string) bool {
	return eventType == events.TypeUnitProcessed
}
