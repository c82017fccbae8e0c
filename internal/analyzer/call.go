package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/raine/appraisal-lots/internal/imageset"
	"github.com/raine/appraisal-lots/internal/llm"
	"github.com/raine/appraisal-lots/internal/lot"
	"github.com/rs/zerolog/log"
)

type base struct {
	client llm.Client
	loader imageset.Loader
}

// callResult is the contribution of one model call.
type callResult struct {
	// resp is nil when the answer could not be parsed
	resp     *llm.LotResponse
	usage    llm.Usage
	warnings []string
}

// call sends blobs with the prompt for mode and parses the answer. Only
// transport errors are returned; a malformed answer yields a nil resp and a
// warning. imageIndex is reported in events and warnings, -1 for set-wide calls.
func (b *base) call(ctx context.Context, mode lot.GroupingMode, blobs []*imageset.Blob, opts Options, imageIndex int) (callResult, error) {
	req := &llm.Request{
		Prompt: llm.LotPrompt(mode, len(blobs), opts.Language, opts.Currency),
		Images: make([]llm.Image, len(blobs)),
	}
	for i, blob := range blobs {
		req.Images[i] = llm.Image{Data: blob.Data, MIMEType: blob.MIMEType}
	}

	start := time.Now()
	resp, err := b.client.Generate(ctx, req)
	if err != nil {
		opts.emit(Event{Mode: mode, Stage: StageCall, ImageIndex: imageIndex, Duration: time.Since(start), Err: err})
		log.Error().Err(err).Stringer("mode", mode).Int("imageIndex", imageIndex).Msg("model call failed")
		return callResult{}, fmt.Errorf("%w: %s: %w", ErrAnalysisFailed, scope(imageIndex), err)
	}

	out := callResult{usage: resp.Usage}
	parsed, err := llm.ParseLots(resp.Text)
	if err != nil {
		opts.emit(Event{Mode: mode, Stage: StageParseError, ImageIndex: imageIndex, Duration: time.Since(start), Cached: resp.Cached, Err: err})
		log.Warn().Err(err).Stringer("mode", mode).Int("imageIndex", imageIndex).Msg("dropping unparseable model response")
		out.warnings = append(out.warnings, fmt.Sprintf("%s: model response could not be parsed", scope(imageIndex)))
		return out, nil
	}

	for i := 0; i < parsed.Rejected; i++ {
		opts.emit(Event{Mode: mode, Stage: StageLotRejected, ImageIndex: imageIndex})
	}
	if parsed.Rejected > 0 {
		out.warnings = append(out.warnings, fmt.Sprintf("%s: %d lot(s) without title or description dropped", scope(imageIndex), parsed.Rejected))
	}

	opts.emit(Event{Mode: mode, Stage: StageCall, ImageIndex: imageIndex, Lots: len(parsed.Lots), Duration: time.Since(start), Cached: resp.Cached})
	log.Debug().
		Stringer("mode", mode).
		Int("imageIndex", imageIndex).
		Int("lots", len(parsed.Lots)).
		Bool("cached", resp.Cached).
		Msg("model response parsed")

	out.resp = parsed
	return out, nil
}

// absorb adds the bookkeeping of a call to the result.
func (r *Result) absorb(out callResult) {
	r.Calls++
	r.Usage = r.Usage.Add(out.usage)
	r.Warnings = append(r.Warnings, out.warnings...)
	if out.resp != nil && r.Summary == "" {
		r.Summary = out.resp.Summary
	}
}

func scope(imageIndex int) string {
	if imageIndex < 0 {
		return "all images"
	}
	return fmt.Sprintf("image %d", imageIndex)
}

func loadFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
}
