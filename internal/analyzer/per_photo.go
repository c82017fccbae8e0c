package analyzer

import (
	"context"
	"sort"

	"github.com/raine/appraisal-lots/internal/imageset"
	"github.com/raine/appraisal-lots/internal/lot"
	"github.com/rs/zerolog/log"
)

// perPhoto asks for exactly one lot per image in a single call with every
// image attached.
type perPhoto struct {
	base
}

func (a *perPhoto) Mode() lot.GroupingMode {
	return lot.PerPhoto
}

// Analyze keeps a returned lot only if it names exactly one in-range index
// that no earlier lot claimed. Images without a usable lot get none; no
// placeholder is fabricated. Lots are ordered by image index.
func (a *perPhoto) Analyze(ctx context.Context, set imageset.ImageSet, opts Options) (*Result, error) {
	res := &Result{Mode: lot.PerPhoto}
	n := set.Len()
	if n == 0 {
		return res, nil
	}

	blobs, err := imageset.LoadAll(ctx, a.loader, set.Images(), opts.limit())
	if err != nil {
		return nil, loadFailed(err)
	}

	out, err := a.call(ctx, lot.PerPhoto, blobs, opts, -1)
	if err != nil {
		return nil, err
	}
	res.absorb(out)
	if out.resp == nil {
		return res, nil
	}

	claimed := make(map[int]bool, n)
	for _, l := range out.resp.Lots {
		indexes := lot.SanitizeIndexes(l.ImageIndexes, n)
		if len(l.ImageIndexes) != 1 || len(indexes) != 1 || claimed[indexes[0]] {
			log.Warn().Ints("imageIndexes", l.ImageIndexes).Str("title", l.Title).Msg("dropping per photo lot without a unique image index")
			res.warnf("lot %q dropped: image_indexes %v is not a single unclaimed image", l.Title, l.ImageIndexes)
			continue
		}
		claimed[indexes[0]] = true
		l.ImageIndexes = indexes
		l.ExtraImageIndexes = nil
		l.ImageURL = ""
		res.Lots = append(res.Lots, l)
	}

	sort.SliceStable(res.Lots, func(i, j int) bool {
		return res.Lots[i].ImageIndexes[0] < res.Lots[j].ImageIndexes[0]
	})

	for i := 0; i < n; i++ {
		if !claimed[i] {
			res.warnf("image %d: no lot returned", i)
		}
	}
	return res, nil
}
