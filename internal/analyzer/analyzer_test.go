package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raine/appraisal-lots/internal/imageset"
	"github.com/raine/appraisal-lots/internal/llm"
	"github.com/raine/appraisal-lots/internal/lot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient answers every request with respond and records the requests.
type scriptedClient struct {
	mu       sync.Mutex
	respond  func(req *llm.Request) (string, error)
	requests []*llm.Request
}

func (c *scriptedClient) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	text, err := c.respond(req)
	if err != nil {
		return nil, err
	}
	return &llm.Response{Text: text, Model: "test", Usage: llm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}}, nil
}

func (c *scriptedClient) Name() string { return "test/model" }

func (c *scriptedClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// urlLoader returns the locator itself as image data.
type urlLoader struct {
	fail string
}

func (l urlLoader) Load(ctx context.Context, img imageset.Image) (*imageset.Blob, error) {
	if img.URL == l.fail {
		return nil, errors.New("connection refused")
	}
	return &imageset.Blob{Data: []byte(img.URL), MIMEType: "image/jpeg"}, nil
}

func imageOf(req *llm.Request) string {
	return string(req.Images[0].Data)
}

func newAnalyzer(t *testing.T, mode lot.GroupingMode, client llm.Client) Analyzer {
	t.Helper()
	a, err := New(mode, client, urlLoader{})
	require.NoError(t, err)
	require.Equal(t, mode, a.Mode())
	return a
}

var opts = Options{Language: "en", Currency: "USD"}

func TestNew_UnknownMode(t *testing.T) {
	_, err := New(lot.GroupingMode("per_room"), &scriptedClient{}, urlLoader{})
	assert.ErrorIs(t, err, lot.ErrUnknownMode)
}

func TestAnalyze_EmptySetMakesNoCalls(t *testing.T) {
	for _, mode := range lot.Modes() {
		client := &scriptedClient{respond: func(*llm.Request) (string, error) {
			t.Fatal("unexpected model call")
			return "", nil
		}}
		res, err := newAnalyzer(t, mode, client).Analyze(context.Background(), imageset.Resolve(nil), opts)
		require.NoError(t, err, mode)
		assert.Empty(t, res.Lots, mode)
		assert.Equal(t, 0, res.Calls, mode)
	}
}

// --- single_lot ---

func TestSingleLot_CollapsesDuplicateFrames(t *testing.T) {
	// 4 images in 2 duplicate-frame groups: {0,1} and {2,3}
	client := &scriptedClient{respond: func(req *llm.Request) (string, error) {
		return `{"summary": "one sofa", "lots": [{"lot_id": "1", "title": "Sofa", "description": "Leather sofa",
			"image_indexes": [0, 2], "extra_image_indexes": [1, 3, 2, 9]}]}`, nil
	}}
	set := imageset.Resolve([]string{"a", "b", "c", "d"})

	res, err := newAnalyzer(t, lot.SingleLot, client).Analyze(context.Background(), set, opts)
	require.NoError(t, err)

	require.Len(t, res.Lots, 1)
	assert.Equal(t, []int{0, 2}, res.Lots[0].ImageIndexes)
	assert.Equal(t, []int{1, 3}, res.Lots[0].ExtraImageIndexes)
	assert.Equal(t, "one sofa", res.Summary)
	assert.Equal(t, 1, client.calls())
	assert.Len(t, client.requests[0].Images, 4)
	assert.Contains(t, client.requests[0].Prompt, "4 photos")
}

func TestSingleLot_KeepsFirstLotAndSanitizesIndexes(t *testing.T) {
	client := &scriptedClient{respond: func(req *llm.Request) (string, error) {
		return `{"lots": [
			{"title": "Sofa", "description": "Leather sofa", "image_indexes": [1, 1, 7, -2], "image_url": "x"},
			{"title": "Lamp", "description": "Floor lamp", "image_indexes": [0]}]}`, nil
	}}
	set := imageset.Resolve([]string{"a", "b"})

	res, err := newAnalyzer(t, lot.SingleLot, client).Analyze(context.Background(), set, opts)
	require.NoError(t, err)

	require.Len(t, res.Lots, 1)
	assert.Equal(t, "Sofa", res.Lots[0].Title)
	assert.Equal(t, []int{1}, res.Lots[0].ImageIndexes)
	assert.Equal(t, "", res.Lots[0].ImageURL)
	assert.Equal(t, "1", res.Lots[0].LotID)
	assert.NotEmpty(t, res.Warnings)
}

func TestSingleLot_NoValidIndexFallsBackToAllImages(t *testing.T) {
	client := &scriptedClient{respond: func(req *llm.Request) (string, error) {
		return `{"lots": [{"title": "Sofa", "description": "Leather sofa", "image_indexes": []}]}`, nil
	}}
	set := imageset.Resolve([]string{"a", "b", "c"})

	res, err := newAnalyzer(t, lot.SingleLot, client).Analyze(context.Background(), set, opts)
	require.NoError(t, err)
	require.Len(t, res.Lots, 1)
	assert.Equal(t, []int{0, 1, 2}, res.Lots[0].ImageIndexes)
}

func TestSingleLot_AtMostOneLot(t *testing.T) {
	for _, answer := range []string{`{"lots": []}`, `not json`, `{"lots": [{"title": "x"}]}`} {
		client := &scriptedClient{respond: func(*llm.Request) (string, error) { return answer, nil }}
		res, err := newAnalyzer(t, lot.SingleLot, client).Analyze(context.Background(), imageset.Resolve([]string{"a"}), opts)
		require.NoError(t, err, answer)
		assert.Empty(t, res.Lots, answer)
	}
}

// --- per_item ---

func TestPerItem_TagsLotsWithSourceImage(t *testing.T) {
	client := &scriptedClient{respond: func(req *llm.Request) (string, error) {
		switch imageOf(req) {
		case "http://img/0":
			// the model's own index claims are ignored
			return `{"lots": [
				{"lot_id": "1", "title": "Drill", "description": "Cordless drill", "image_indexes": [5], "image_url": "bogus"},
				{"lot_id": "2", "title": "Saw", "description": "Circular saw", "image_indexes": [0, 1]}]}`, nil
		case "http://img/1":
			return `{"lots": [{"title": "Ladder", "description": "Alu ladder"}]}`, nil
		}
		return `{"lots": []}`, nil
	}}
	set := imageset.Resolve([]string{"http://img/0", "http://img/1", "http://img/2"})

	res, err := newAnalyzer(t, lot.PerItem, client).Analyze(context.Background(), set, opts)
	require.NoError(t, err)

	require.Len(t, res.Lots, 3)
	assert.Equal(t, 3, client.calls())
	assert.Equal(t, 3, res.Calls)
	assert.Equal(t, int64(45), res.Usage.TotalTokens)

	want := []struct {
		title string
		index int
		id    string
	}{
		{"Drill", 0, "0-1"},
		{"Saw", 0, "0-2"},
		{"Ladder", 1, "1-1"},
	}
	for i, w := range want {
		l := res.Lots[i]
		assert.Equal(t, w.title, l.Title)
		assert.Equal(t, []int{w.index}, l.ImageIndexes)
		url, _ := set.URL(w.index)
		assert.Equal(t, url, l.ImageURL)
		assert.Equal(t, w.id, l.LotID)
	}
	for _, req := range client.requests {
		assert.Len(t, req.Images, 1)
	}
}

func TestPerItem_ParallelKeepsIndexOrder(t *testing.T) {
	const n = 8
	client := &scriptedClient{respond: func(req *llm.Request) (string, error) {
		var i int
		fmt.Sscanf(imageOf(req), "img-%d", &i)
		// later images finish first
		time.Sleep(time.Duration(n-i) * 2 * time.Millisecond)
		return fmt.Sprintf(`{"lots": [{"title": "Item %d", "description": "d"}]}`, i), nil
	}}
	locators := make([]string, n)
	for i := range locators {
		locators[i] = fmt.Sprintf("img-%d", i)
	}
	set := imageset.Resolve(locators)

	res, err := newAnalyzer(t, lot.PerItem, client).Analyze(context.Background(), set, Options{Concurrency: 4})
	require.NoError(t, err)
	require.Len(t, res.Lots, n)
	for i, l := range res.Lots {
		assert.Equal(t, fmt.Sprintf("Item %d", i), l.Title)
		assert.Equal(t, []int{i}, l.ImageIndexes)
		assert.Equal(t, locators[i], l.ImageURL)
	}
}

func TestPerItem_UnparseableResponseDropsOnlyThatImage(t *testing.T) {
	var events []Event
	var mu sync.Mutex
	hook := func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}
	client := &scriptedClient{respond: func(req *llm.Request) (string, error) {
		if imageOf(req) == "b" {
			return "I see a chair.", nil
		}
		return `{"lots": [{"title": "Chair", "description": "Wooden chair"}]}`, nil
	}}
	set := imageset.Resolve([]string{"a", "b", "c"})

	res, err := newAnalyzer(t, lot.PerItem, client).Analyze(context.Background(), set, Options{Hook: hook})
	require.NoError(t, err)

	require.Len(t, res.Lots, 2)
	assert.Equal(t, []int{0}, res.Lots[0].ImageIndexes)
	assert.Equal(t, []int{2}, res.Lots[1].ImageIndexes)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "image 1")

	var parseErrors int
	for _, e := range events {
		if e.Stage == StageParseError {
			parseErrors++
			assert.Equal(t, 1, e.ImageIndex)
		}
	}
	assert.Equal(t, 1, parseErrors)
}

func TestPerItem_TransportErrorFailsRun(t *testing.T) {
	client := &scriptedClient{respond: func(req *llm.Request) (string, error) {
		if imageOf(req) == "b" {
			return "", errors.New("503 service unavailable")
		}
		return `{"lots": [{"title": "Chair", "description": "Wooden chair"}]}`, nil
	}}
	set := imageset.Resolve([]string{"a", "b", "c"})

	res, err := newAnalyzer(t, lot.PerItem, client).Analyze(context.Background(), set, opts)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAnalysisFailed))
	assert.Contains(t, err.Error(), "image 1")
	assert.Contains(t, err.Error(), "503")
}

func TestPerItem_ImageLoadErrorFailsRun(t *testing.T) {
	client := &scriptedClient{respond: func(*llm.Request) (string, error) { return `{"lots": []}`, nil }}
	a, err := New(lot.PerItem, client, urlLoader{fail: "b"})
	require.NoError(t, err)

	_, err = a.Analyze(context.Background(), imageset.Resolve([]string{"a", "b"}), opts)
	assert.ErrorIs(t, err, ErrAnalysisFailed)
}

// --- per_photo ---

func TestPerPhoto_OneLotPerImage(t *testing.T) {
	client := &scriptedClient{respond: func(req *llm.Request) (string, error) {
		return `{"lots": [
			{"title": "C", "description": "third", "image_indexes": [2]},
			{"title": "A", "description": "first", "image_indexes": [0]},
			{"title": "B", "description": "second", "image_indexes": [1]}]}`, nil
	}}
	set := imageset.Resolve([]string{"a", "b", "c"})

	res, err := newAnalyzer(t, lot.PerPhoto, client).Analyze(context.Background(), set, opts)
	require.NoError(t, err)

	require.Len(t, res.Lots, 3)
	for i, l := range res.Lots {
		assert.Equal(t, []int{i}, l.ImageIndexes)
	}
	assert.Equal(t, "A", res.Lots[0].Title)
	assert.Equal(t, 1, client.calls())
	assert.Len(t, client.requests[0].Images, 3)
	assert.Empty(t, res.Warnings)
}

func TestPerPhoto_MissingIndexGetsNoLot(t *testing.T) {
	client := &scriptedClient{respond: func(req *llm.Request) (string, error) {
		return `{"lots": [
			{"title": "A", "description": "first", "image_indexes": [0]},
			{"title": "C", "description": "third", "image_indexes": [2]}]}`, nil
	}}
	set := imageset.Resolve([]string{"a", "b", "c"})

	res, err := newAnalyzer(t, lot.PerPhoto, client).Analyze(context.Background(), set, opts)
	require.NoError(t, err)

	require.Len(t, res.Lots, 2)
	assert.Equal(t, []int{0}, res.Lots[0].ImageIndexes)
	assert.Equal(t, []int{2}, res.Lots[1].ImageIndexes)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "image 1: no lot returned", res.Warnings[0])
}

func TestPerPhoto_RejectsOverlappingAndMultiIndexLots(t *testing.T) {
	client := &scriptedClient{respond: func(req *llm.Request) (string, error) {
		return `{"lots": [
			{"title": "A", "description": "first", "image_indexes": [0]},
			{"title": "A again", "description": "dup", "image_indexes": [0]},
			{"title": "BC", "description": "two photos", "image_indexes": [1, 2]},
			{"title": "Out", "description": "bad index", "image_indexes": [3]},
			{"title": "None", "description": "no index"},
			{"title": "C", "description": "third", "image_indexes": [2]}]}`, nil
	}}
	set := imageset.Resolve([]string{"a", "b", "c"})

	res, err := newAnalyzer(t, lot.PerPhoto, client).Analyze(context.Background(), set, opts)
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, l := range res.Lots {
		require.Len(t, l.ImageIndexes, 1)
		idx := l.ImageIndexes[0]
		assert.True(t, set.Contains(idx))
		assert.False(t, seen[idx], "index %d used twice", idx)
		seen[idx] = true
	}
	require.Len(t, res.Lots, 2)
	assert.Equal(t, "A", res.Lots[0].Title)
	assert.Equal(t, "C", res.Lots[1].Title)
}

func TestPerPhoto_TransportError(t *testing.T) {
	client := &scriptedClient{respond: func(*llm.Request) (string, error) {
		return "", errors.New("dial tcp: i/o timeout")
	}}

	_, err := newAnalyzer(t, lot.PerPhoto, client).Analyze(context.Background(), imageset.Resolve([]string{"a"}), opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysisFailed)
	assert.True(t, strings.HasPrefix(err.Error(), "could not analyze images"))
}
