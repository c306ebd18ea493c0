// Package results turns a detection list into the summary panel shown
// next to the canvas.
package results

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-detect/pkg/detection"
)

// Placeholder is shown when a cycle finds nothing.
const Placeholder = "Tidak ada objek terdeteksi"

// Row is one line of the per-detection list.
type Row struct {
	Rank    int    `json:"rank"`
	Label   string `json:"label"`
	Percent int    `json:"percent"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// String renders the row as "{rank}. {label} · Akurasi: {pct}% · {w}×{h}px".
func (r Row) String() string {
	return fmt.Sprintf("%d. %s · Akurasi: %d%% · %d×%dpx", r.Rank, r.Label, r.Percent, r.Width, r.Height)
}

// Panel is the full results display for one cycle. Each cycle replaces
// the previous panel entirely.
type Panel struct {
	ObjectCount    string   `json:"object_count"`
	ConfidenceAvg  string   `json:"confidence_avg"`
	ProcessingTime string   `json:"processing_time"`
	Rows           []Row    `json:"rows"`
	Lines          []string `json:"lines"`

	// Placeholder is set instead of Rows when nothing was found.
	Placeholder string `json:"placeholder,omitempty"`
}

// Empty reports whether the panel shows the placeholder.
func (p Panel) Empty() bool {
	return len(p.Rows) == 0
}

// Present builds the panel for dets found in elapsed time.
// An empty list reports zeros regardless of elapsed.
func Present(dets []detection.Detection, elapsed time.Duration) Panel {
	if len(dets) == 0 {
		return Panel{
			ObjectCount:    "0",
			ConfidenceAvg:  "0%",
			ProcessingTime: "0ms",
			Rows:           []Row{},
			Lines:          []string{Placeholder},
			Placeholder:    Placeholder,
		}
	}

	var sum float64
	rows := make([]Row, 0, len(dets))
	lines := make([]string, 0, len(dets))
	for i, d := range dets {
		sum += d.Confidence
		row := Row{
			Rank:    i + 1,
			Label:   d.Label,
			Percent: d.Percent(),
			Width:   detection.Round(d.Box.Width),
			Height:  detection.Round(d.Box.Height),
		}
		rows = append(rows, row)
		lines = append(lines, row.String())
	}

	ms := float64(elapsed) / float64(time.Millisecond)
	return Panel{
		ObjectCount:    fmt.Sprint(len(dets)),
		ConfidenceAvg:  fmt.Sprintf("%d%%", detection.Round(sum/float64(len(dets))*100)),
		ProcessingTime: fmt.Sprintf("%dms", detection.Round(ms)),
		Rows:           rows,
		Lines:          lines,
	}
}
