// Package pipeline runs the Resolver, Analyzer, Deduplicator and Assembler
// stages for one batch of images.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raine/appraisal-lots/internal/analyzer"
	"github.com/raine/appraisal-lots/internal/assembler"
	"github.com/raine/appraisal-lots/internal/dedupe"
	"github.com/raine/appraisal-lots/internal/imageset"
	"github.com/raine/appraisal-lots/internal/llm"
	"github.com/raine/appraisal-lots/internal/lot"
	"github.com/raine/appraisal-lots/internal/metrics"
	"github.com/raine/appraisal-lots/internal/storage"
	"github.com/rs/zerolog/log"
)

const (
	DefaultLanguage = "en"
	DefaultCurrency = "USD"
)

var supportedLanguages = map[string]bool{"en": true, "fr": true, "es": true}

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(run *storage.Run) error
}

// Options carries the per-run hints.
type Options struct {
	Language    string
	Currency    string
	Concurrency int
	// Metadata is copied onto the report unchanged.
	Metadata map[string]string
}

// Runner executes pipeline runs. A Runner holds no per-run state and can be
// shared by concurrent runs.
type Runner struct {
	client  llm.Client
	loader  imageset.Loader
	store   RunStore
	metrics *metrics.Pipeline
	hook    analyzer.Hook
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore saves every successful run to s.
func WithStore(s RunStore) Option {
	return func(r *Runner) { r.store = s }
}

// WithMetrics records run metrics to m.
func WithMetrics(m *metrics.Pipeline) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithHook passes analysis events to h.
func WithHook(h analyzer.Hook) Option {
	return func(r *Runner) { r.hook = h }
}

// NewRunner creates a runner that analyzes images with client, reading image
// bytes through loader.
func NewRunner(client llm.Client, loader imageset.Loader, opts ...Option) *Runner {
	r := &Runner{client: client, loader: loader}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.NewPipeline(nil)
	}
	return r
}

// Run analyzes locators with one grouping mode and returns the assembled
// report. An unknown mode or an empty locator list yields an empty report.
// The error wraps analyzer.ErrAnalysisFailed when the AI collaborator or an
// image fetch failed.
func (r *Runner) Run(ctx context.Context, locators []string, mode string, opts Options) (*assembler.Report, error) {
	return r.RunCombined(ctx, locators, []string{mode}, opts)
}

// RunCombined runs several grouping modes over the same images, concatenates
// their candidates in mode order and deduplicates them once. Unknown modes
// are skipped with a warning.
func (r *Runner) RunCombined(ctx context.Context, locators []string, modes []string, opts Options) (*assembler.Report, error) {
	set := imageset.Resolve(locators)
	language, currency := normalizeHints(opts.Language, opts.Currency)

	var warnings []string
	var parsed []lot.GroupingMode
	seen := map[lot.GroupingMode]bool{}
	for _, m := range modes {
		mode, err := lot.ParseMode(m)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("unknown grouping mode %q", m))
			continue
		}
		if !seen[mode] {
			seen[mode] = true
			parsed = append(parsed, mode)
		}
	}
	modeLabel := joinModes(parsed)
	runID := uuid.New().String()

	logger := log.With().Str("runID", runID).Str("mode", modeLabel).Int("images", set.Len()).Logger()
	logger.Info().Msg("starting appraisal run")
	start := time.Now()

	aopts := analyzer.Options{
		Language:    language,
		Currency:    currency,
		Concurrency: opts.Concurrency,
		Hook:        r.observe,
	}

	var candidates []lot.Lot
	var usage llm.Usage
	var summary string
	for _, mode := range parsed {
		a, err := analyzer.New(mode, r.client, r.loader)
		if err != nil {
			return nil, err
		}
		res, err := a.Analyze(ctx, set, aopts)
		if err != nil {
			r.metrics.RecordRunFailure(modeLabel)
			logger.Error().Err(err).Str("failedMode", string(mode)).Msg("appraisal run failed")
			return nil, err
		}
		candidates = append(candidates, res.Lots...)
		warnings = append(warnings, res.Warnings...)
		usage = usage.Add(res.Usage)
		if summary == "" {
			summary = res.Summary
		}
	}

	// candidate and final counts share the run label
	r.metrics.RecordCandidates(modeLabel, len(candidates))
	lots, dedup := dedupe.Deduplicate(candidates)
	r.metrics.RecordDropped(metrics.DroppedSerial, dedup.DroppedBySerial)
	r.metrics.RecordDropped(metrics.DroppedFrame, dedup.DroppedByFrame)

	report := assembler.Assemble(set, lots, assembler.Meta{
		RunID:    runID,
		Mode:     modeLabel,
		Language: language,
		Currency: currency,
		Summary:  summary,
		Dedup:    dedup,
		Warnings: warnings,
		Usage:    usage,
		Extra:    opts.Metadata,
	})
	r.metrics.RecordFinal(modeLabel, len(report.Lots))

	logger.Info().
		Int("candidates", dedup.Input).
		Int("lots", len(report.Lots)).
		Int("dropped", dedup.Dropped()).
		Int("warnings", len(warnings)).
		Float64("totalValue", report.TotalValue()).
		Float64("costUSD", usage.CostUSD).
		Dur("duration", time.Since(start)).
		Msg("appraisal run finished")

	r.save(report, set.Len())
	return report, nil
}

// save stores the report. Storage failures are logged and do not fail the run.
func (r *Runner) save(report *assembler.Report, imageCount int) {
	if r.store == nil {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		log.Error().Err(err).Str("runID", report.RunID).Msg("failed to encode report")
		return
	}
	err = r.store.SaveRun(&storage.Run{
		ID:             report.RunID,
		Mode:           report.Mode,
		Language:       report.Language,
		Currency:       report.Currency,
		ImageCount:     imageCount,
		CandidateCount: report.Dedup.Input,
		LotCount:       len(report.Lots),
		TotalValue:     report.TotalValue(),
		Report:         data,
	})
	if err != nil {
		log.Error().Err(err).Str("runID", report.RunID).Msg("failed to save run")
	}
}

// observe feeds analysis events to metrics and the configured hook.
func (r *Runner) observe(e analyzer.Event) {
	mode := string(e.Mode)
	switch e.Stage {
	case analyzer.StageCall:
		status := "ok"
		switch {
		case e.Err != nil:
			status = "error"
		case e.Cached:
			status = "cached"
		}
		r.metrics.RecordAICall(mode, status, e.Duration)
	case analyzer.StageParseError:
		r.metrics.RecordAICall(mode, "ok", e.Duration)
		r.metrics.RecordParseFailure(mode)
	}
	if r.hook != nil {
		r.hook(e)
	}
}

func normalizeHints(language, currency string) (string, string) {
	language = strings.ToLower(strings.TrimSpace(language))
	if !supportedLanguages[language] {
		language = DefaultLanguage
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	return language, currency
}

func joinModes(modes []lot.GroupingMode) string {
	parts := make([]string, len(modes))
	for i, m := range modes {
		parts[i] = string(m)
	}
	return strings.Join(parts, "+")
}
