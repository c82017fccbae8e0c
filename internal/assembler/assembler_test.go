package assembler

import (
	"testing"

	"github.com/raine/appraisal-lots/internal/dedupe"
	"github.com/raine/appraisal-lots/internal/imageset"
	"github.com/raine/appraisal-lots/internal/lot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemble_ResolvesImageURLs(t *testing.T) {
	set := imageset.Resolve([]string{"a.jpg", "b.jpg", "c.jpg"})
	lots := []lot.Lot{
		{LotID: "0-1", Title: "Sofa", ImageIndexes: []int{2, 0}, ExtraImageIndexes: []int{1}},
		{LotID: "1-1", Title: "Lamp", ImageIndexes: []int{1}},
	}

	report := Assemble(set, lots, Meta{Mode: "single_lot", Language: "en", Currency: "USD"})

	require.Len(t, report.Lots, 2)
	assert.Equal(t, []string{"c.jpg", "a.jpg"}, report.Lots[0].ImageURLs)
	assert.Equal(t, []string{"b.jpg"}, report.Lots[0].ExtraImageURLs)
	assert.Equal(t, []string{"b.jpg"}, report.Lots[1].ImageURLs)
	assert.Equal(t, "1", report.Lots[0].LotID)
	assert.Equal(t, "2", report.Lots[1].LotID)
	assert.Len(t, report.Images, 3)
	assert.Equal(t, "single_lot", report.Mode)
}

func TestAssemble_SkipsOutOfRangeIndexes(t *testing.T) {
	set := imageset.Resolve([]string{"a.jpg", "b.jpg"})
	lots := []lot.Lot{
		{Title: "Sofa", ImageIndexes: []int{5, 1, -1, 1}},
		{Title: "Ghost", ImageIndexes: []int{9}},
	}

	report := Assemble(set, lots, Meta{})

	require.Len(t, report.Lots, 2, "lots are never dropped")
	assert.Equal(t, []int{1}, report.Lots[0].ImageIndexes)
	assert.Equal(t, []string{"b.jpg"}, report.Lots[0].ImageURLs)
	assert.Empty(t, report.Lots[1].ImageIndexes)
	assert.Empty(t, report.Lots[1].ImageURLs)
}

func TestAssemble_ImageURLsParallelToIndexes(t *testing.T) {
	set := imageset.Resolve([]string{"a", "b", "c", "d"})
	lots := []lot.Lot{{Title: "X", ImageIndexes: []int{3, 7, 0, 2}}}

	report := Assemble(set, lots, Meta{})
	l := report.Lots[0]
	require.Equal(t, len(l.ImageIndexes), len(l.ImageURLs))
	for i, idx := range l.ImageIndexes {
		url, _ := set.URL(idx)
		assert.Equal(t, url, l.ImageURLs[i])
	}
}

func TestAssemble_UniqueTitles(t *testing.T) {
	lots := []lot.Lot{
		{Title: "Chair"},
		{Title: "chair"},
		{Title: "Chair (2)"},
		{Title: "Chair"},
		{Title: "Table"},
	}

	report := Assemble(imageset.Resolve(nil), lots, Meta{})

	var got []string
	for _, l := range report.Lots {
		got = append(got, l.Title)
	}
	assert.Equal(t, []string{"Chair", "chair (2)", "Chair (2) (2)", "Chair (3)", "Table"}, got)
}

func TestAssemble_DoesNotModifyInput(t *testing.T) {
	set := imageset.Resolve([]string{"a.jpg"})
	lots := []lot.Lot{{LotID: "x", Title: "A", ImageIndexes: []int{0, 4}}, {Title: "A"}}

	Assemble(set, lots, Meta{})

	assert.Equal(t, "x", lots[0].LotID)
	assert.Equal(t, []int{0, 4}, lots[0].ImageIndexes)
	assert.Nil(t, lots[0].ImageURLs)
	assert.Equal(t, "A", lots[1].Title)
}

func TestAssemble_PassesMetadataThrough(t *testing.T) {
	v := lot.Amount(100)
	w := lot.Amount(50.5)
	meta := Meta{
		RunID:    "run-1",
		Mode:     "per_item",
		Language: "fr",
		Currency: "EUR",
		Summary:  "Workshop tools",
		Dedup:    dedupe.Summary{Input: 3, Output: 2, DroppedBySerial: 1},
		Warnings: []string{"image 2: model response could not be parsed"},
		Extra:    map[string]string{"client": "ACME"},
	}
	lots := []lot.Lot{{Title: "Drill", EstimatedValue: &v}, {Title: "Saw", EstimatedValue: &w}, {Title: "Box"},
		{Title: "Painting", EstimatedValueText: "on request"}}

	report := Assemble(imageset.Resolve(nil), lots, meta)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, "fr", report.Language)
	assert.Equal(t, "EUR", report.Currency)
	assert.Equal(t, "Workshop tools", report.Summary)
	assert.Equal(t, meta.Dedup, report.Dedup)
	assert.Equal(t, meta.Warnings, report.Warnings)
	assert.Equal(t, "ACME", report.Metadata["client"])
	assert.Equal(t, 150.5, report.TotalValue())
}

func TestAssemble_Empty(t *testing.T) {
	report := Assemble(imageset.Resolve(nil), nil, Meta{})
	assert.NotNil(t, report.Lots)
	assert.Empty(t, report.Lots)
}
