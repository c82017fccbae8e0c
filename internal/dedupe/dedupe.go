// Package dedupe merges candidate lots into the final lot list.
//
// Identity is decided by two keys with deliberately different reach. A serial
// number or label is a physical identifier, so two lots carrying the same
// normalized serial are the same item no matter which images they came from.
// Titles and details are not identifiers; they only collapse lots taken from
// the same image. Lots with neither key are always kept.
package dedupe

import (
	"github.com/raine/appraisal-lots/internal/lot"
)

// Summary reports what a deduplication pass did.
type Summary struct {
	Input           int `json:"input" yaml:"input"`
	Output          int `json:"output" yaml:"output"`
	DroppedBySerial int `json:"dropped_by_serial" yaml:"dropped_by_serial"`
	DroppedByFrame  int `json:"dropped_by_frame" yaml:"dropped_by_frame"`
}

// Dropped returns the number of lots removed.
func (s Summary) Dropped() int {
	return s.Input - s.Output
}

type frameKey struct {
	imageURL string
	title    string
	details  string
}

// Deduplicate returns lots with duplicates removed in a single left-to-right
// pass. The first lot seen for a key wins and kept lots stay in input order.
// Kept lots are returned unmodified.
func Deduplicate(lots []lot.Lot) ([]lot.Lot, Summary) {
	summary := Summary{Input: len(lots)}
	out := make([]lot.Lot, 0, len(lots))

	seenSerial := make(map[string]bool)
	seenFrame := make(map[frameKey]bool)

	for _, l := range lots {
		if serial := l.SerialKey(); serial != "" {
			if seenSerial[serial] {
				summary.DroppedBySerial++
				continue
			}
			seenSerial[serial] = true
			out = append(out, l)
			continue
		}

		if l.ImageURL != "" {
			key := frameKey{
				imageURL: l.ImageURL,
				title:    lot.Normalize(l.Title),
				details:  lot.Normalize(l.Details),
			}
			if seenFrame[key] {
				summary.DroppedByFrame++
				continue
			}
			seenFrame[key] = true
			out = append(out, l)
			continue
		}

		out = append(out, l)
	}

	summary.Output = len(out)
	return out, summary
}
