package analyzer

import (
	"context"

	"github.com/raine/appraisal-lots/internal/imageset"
	"github.com/raine/appraisal-lots/internal/lot"
	"github.com/rs/zerolog/log"
)

// singleLot treats the whole set as one lot and lets the model collapse
// near-duplicate frames to one representative index per group.
type singleLot struct {
	base
}

func (a *singleLot) Mode() lot.GroupingMode {
	return lot.SingleLot
}

func (a *singleLot) Analyze(ctx context.Context, set imageset.ImageSet, opts Options) (*Result, error) {
	res := &Result{Mode: lot.SingleLot}
	if set.Len() == 0 {
		return res, nil
	}

	blobs, err := imageset.LoadAll(ctx, a.loader, set.Images(), opts.limit())
	if err != nil {
		return nil, loadFailed(err)
	}

	out, err := a.call(ctx, lot.SingleLot, blobs, opts, -1)
	if err != nil {
		return nil, err
	}
	res.absorb(out)
	if out.resp == nil || len(out.resp.Lots) == 0 {
		return res, nil
	}
	if len(out.resp.Lots) > 1 {
		log.Warn().Int("lots", len(out.resp.Lots)).Msg("single lot response contained several lots, keeping the first")
		res.warnf("model returned %d lots for a single lot, kept the first", len(out.resp.Lots))
	}

	l := out.resp.Lots[0]
	l.ImageIndexes = lot.SanitizeIndexes(l.ImageIndexes, set.Len())
	if len(l.ImageIndexes) == 0 {
		res.warnf("single lot named no valid image index, using all images")
		l.ImageIndexes = set.Indices()
	}
	l.ExtraImageIndexes = withoutIndexes(lot.SanitizeIndexes(l.ExtraImageIndexes, set.Len()), l.ImageIndexes)
	// the lot spans several frames, it has no single representative locator
	l.ImageURL = ""
	if l.LotID == "" {
		l.LotID = "1"
	}

	res.Lots = []lot.Lot{l}
	return res, nil
}

// withoutIndexes returns the entries of indexes not present in exclude.
func withoutIndexes(indexes, exclude []int) []int {
	if len(indexes) == 0 {
		return nil
	}
	skip := make(map[int]bool, len(exclude))
	for _, i := range exclude {
		skip[i] = true
	}
	var out []int
	for _, i := range indexes {
		if !skip[i] {
			out = append(out, i)
		}
	}
	return out
}
