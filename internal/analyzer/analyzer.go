// Package analyzer turns an ImageSet into candidate lots using one of the
// grouping strategies. It is the only part of the pipeline that talks to the
// AI collaborator.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raine/appraisal-lots/internal/imageset"
	"github.com/raine/appraisal-lots/internal/llm"
	"github.com/raine/appraisal-lots/internal/lot"
)

// ErrAnalysisFailed marks infrastructure failures (AI transport, image fetch).
// It is distinct from a run that legitimately found no lots.
var ErrAnalysisFailed = errors.New("could not analyze images")

// Stage names reported to a Hook.
const (
	StageCall        = "call"
	StageParseError  = "parse_error"
	StageLotRejected = "lot_rejected"
)

// Event describes one observable step of an analysis.
type Event struct {
	Mode  lot.GroupingMode
	Stage string
	// ImageIndex is the source image of a per-image call, -1 for calls
	// covering the whole set.
	ImageIndex int
	Lots       int
	Duration   time.Duration
	Cached     bool
	Err        error
}

// Hook receives analysis events. It may be called from several goroutines
// at once when per-item calls run in parallel.
type Hook func(Event)

// Options carries the per-run context of an analysis.
type Options struct {
	Language string
	Currency string
	// Concurrency bounds parallel per-image calls. Values below 1 mean
	// sequential dispatch.
	Concurrency int
	Hook        Hook
}

func (o Options) emit(e Event) {
	if o.Hook != nil {
		o.Hook(e)
	}
}

func (o Options) limit() int {
	if o.Concurrency < 1 {
		return 1
	}
	return o.Concurrency
}

// Result is the output of one analyzer invocation.
type Result struct {
	Mode     lot.GroupingMode
	Lots     []lot.Lot
	Summary  string
	Warnings []string
	Usage    llm.Usage
	Calls    int
}

func (r *Result) warnf(format string, a ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, a...))
}

// Analyzer produces candidate lots for one grouping mode.
type Analyzer interface {
	Mode() lot.GroupingMode
	// Analyze returns the candidate lots of set. An empty set yields an
	// empty result without calling the model. Unusable model answers
	// contribute no lots; transport failures return ErrAnalysisFailed.
	Analyze(ctx context.Context, set imageset.ImageSet, opts Options) (*Result, error)
}

// New returns the analyzer for mode.
func New(mode lot.GroupingMode, client llm.Client, loader imageset.Loader) (Analyzer, error) {
	b := base{client: client, loader: loader}
	switch mode {
	case lot.SingleLot:
		return &singleLot{base: b}, nil
	case lot.PerItem:
		return &perItem{base: b}, nil
	case lot.PerPhoto:
		return &perPhoto{base: b}, nil
	}
	return nil, fmt.Errorf("%w: %q", lot.ErrUnknownMode, mode)
}
