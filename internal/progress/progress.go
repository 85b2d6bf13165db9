// Package progress renders terminal progress for long restore runs
package progress

import (
	"github.com/schollz/progressbar/v3"
)

// Indicator is the progress surface the engine callbacks drive
type Indicator interface {
	Set(completed int)
	Describe(message string)
	Finish()
}

// Bar wraps schollz/progressbar for job-count progress
type Bar struct {
	bar *progressbar.ProgressBar
}

// NewBar creates a job-count progress bar
func NewBar(total int, description string) *Bar {
	bar := progressbar.NewOptions(
		total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[cyan]█[reset]",
			SaucerHead:    "[cyan]▌[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionClearOnFinish(),
	)
	return &Bar{bar: bar}
}

// Set moves the bar to an absolute completed count
func (b *Bar) Set(completed int) {
	_ = b.bar.Set(completed)
}

// Describe updates the bar description
func (b *Bar) Describe(message string) {
	b.bar.Describe(message)
}

// Finish completes and clears the bar
func (b *Bar) Finish() {
	_ = b.bar.Finish()
}

// NullIndicator discards progress, for quiet and non-TTY runs
type NullIndicator struct{}

func NewNullIndicator() *NullIndicator { return &NullIndicator{} }

func (n *NullIndicator) Set(completed int)        {}
func (n *NullIndicator) Describe(message string)  {}
func (n *NullIndicator) Finish()                  {}
