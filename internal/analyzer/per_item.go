package analyzer

import (
	"context"
	"fmt"

	"github.com/raine/appraisal-lots/internal/imageset"
	"github.com/raine/appraisal-lots/internal/lot"
	"golang.org/x/sync/errgroup"
)

// perItem asks the model for every distinct item in each image, one call per
// image. Lots are tagged with their source image by the component; whatever
// the model says about indexes is ignored.
type perItem struct {
	base
}

func (a *perItem) Mode() lot.GroupingMode {
	return lot.PerItem
}

// Analyze dispatches one call per image with at most opts.Concurrency calls
// in flight. Each call writes into the slot of its own image index, so output
// order follows image order regardless of completion order. The first
// transport failure cancels the remaining calls and fails the invocation.
func (a *perItem) Analyze(ctx context.Context, set imageset.ImageSet, opts Options) (*Result, error) {
	res := &Result{Mode: lot.PerItem}
	if set.Len() == 0 {
		return res, nil
	}

	slots := make([]callResult, set.Len())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.limit())
	for _, img := range set.Images() {
		g.Go(func() error {
			blob, err := a.loader.Load(gctx, img)
			if err != nil {
				return loadFailed(err)
			}
			out, err := a.call(gctx, lot.PerItem, []*imageset.Blob{blob}, opts, img.Index)
			if err != nil {
				return err
			}
			slots[img.Index] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, out := range slots {
		res.absorb(out)
		if out.resp == nil {
			continue
		}
		url, _ := set.URL(i)
		for j, l := range out.resp.Lots {
			id := l.LotID
			if id == "" {
				id = fmt.Sprint(j + 1)
			}
			l.LotID = fmt.Sprintf("%d-%s", i, id)
			l.ImageIndexes = []int{i}
			l.ImageURL = url
			l.ExtraImageIndexes = nil
			res.Lots = append(res.Lots, l)
		}
	}
	return res, nil
}
