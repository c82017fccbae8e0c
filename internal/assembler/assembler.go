// Package assembler resolves deduplicated lots against the ImageSet and
// produces the report handed to document generation.
package assembler

import (
	"fmt"
	"strconv"

	"github.com/raine/appraisal-lots/internal/dedupe"
	"github.com/raine/appraisal-lots/internal/imageset"
	"github.com/raine/appraisal-lots/internal/llm"
	"github.com/raine/appraisal-lots/internal/lot"
	"github.com/rs/zerolog/log"
)

// Meta is report-level information passed through to the report.
type Meta struct {
	RunID    string
	Mode     string
	Language string
	Currency string
	Summary  string
	Dedup    dedupe.Summary
	Warnings []string
	Usage    llm.Usage
	Extra    map[string]string
}

// Report is the final lot collection of one run.
type Report struct {
	RunID    string            `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Mode     string            `json:"mode" yaml:"mode"`
	Language string            `json:"language" yaml:"language"`
	Currency string            `json:"currency" yaml:"currency"`
	Summary  string            `json:"summary,omitempty" yaml:"summary,omitempty"`
	Images   []imageset.Image  `json:"images" yaml:"images"`
	Lots     []lot.Lot         `json:"lots" yaml:"lots"`
	Dedup    dedupe.Summary    `json:"dedup" yaml:"dedup"`
	Warnings []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Usage    llm.Usage         `json:"usage" yaml:"usage"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// TotalValue sums the estimated values of all lots. Lots whose value is
// unknown or only quoted as text do not count.
func (r *Report) TotalValue() float64 {
	var total float64
	for _, l := range r.Lots {
		if l.EstimatedValue != nil {
			total += l.EstimatedValue.Float()
		}
	}
	return total
}

// Assemble copies lots into a report. For every lot it resolves
// image_indexes into image_urls and extra_image_indexes into extra_image_urls,
// skipping indexes outside the set, assigns sequential lot ids and makes
// titles unique. No lot is dropped and the input is not modified.
func Assemble(set imageset.ImageSet, lots []lot.Lot, meta Meta) *Report {
	report := &Report{
		RunID:    meta.RunID,
		Mode:     meta.Mode,
		Language: meta.Language,
		Currency: meta.Currency,
		Summary:  meta.Summary,
		Images:   set.Images(),
		Lots:     make([]lot.Lot, 0, len(lots)),
		Dedup:    meta.Dedup,
		Warnings: meta.Warnings,
		Usage:    meta.Usage,
		Metadata: meta.Extra,
	}

	titles := newTitleSet()
	for i, src := range lots {
		l := src.Clone()
		l.LotID = strconv.Itoa(i + 1)
		l.Title = titles.unique(l.Title)

		var skipped int
		l.ImageIndexes, l.ImageURLs, skipped = resolve(set, l.ImageIndexes)
		var skippedExtra int
		l.ExtraImageIndexes, l.ExtraImageURLs, skippedExtra = resolve(set, l.ExtraImageIndexes)
		if skipped+skippedExtra > 0 {
			log.Debug().Str("lotID", l.LotID).Int("skipped", skipped+skippedExtra).Msg("skipped out of range image indexes")
		}

		report.Lots = append(report.Lots, l)
	}

	return report
}

// resolve looks up every index in set. Indexes outside the set and repeated
// indexes are left out of both returned slices, which stay parallel.
func resolve(set imageset.ImageSet, indexes []int) ([]int, []string, int) {
	if len(indexes) == 0 {
		return indexes, nil, 0
	}
	kept := make([]int, 0, len(indexes))
	urls := make([]string, 0, len(indexes))
	seen := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		url, ok := set.URL(i)
		if !ok || seen[i] {
			continue
		}
		seen[i] = true
		kept = append(kept, i)
		urls = append(urls, url)
	}
	return kept, urls, len(indexes) - len(kept)
}

// titleSet hands out titles that are unique after normalization, suffixing
// repeats with " (2)", " (3)" and so on.
type titleSet struct {
	used map[string]bool
	next map[string]int
}

func newTitleSet() *titleSet {
	return &titleSet{used: map[string]bool{}, next: map[string]int{}}
}

func (s *titleSet) unique(title string) string {
	key := lot.Normalize(title)
	candidate := title
	if s.used[key] {
		n := s.next[key]
		if n < 2 {
			n = 2
		}
		for {
			candidate = fmt.Sprintf("%s (%d)", title, n)
			n++
			if !s.used[lot.Normalize(candidate)] {
				break
			}
		}
		s.next[key] = n
	}
	s.used[lot.Normalize(candidate)] = true
	return candidate
}
