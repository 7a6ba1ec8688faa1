package captcha

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tile renders a small uniform square whose gray level identifies it to the fake recognizer.
func tile(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: shade, B: shade, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeRecognizer answers by the shade of the top-left pixel. Readings for
// preprocessed (*image.Gray) inputs come from the variants map.
type fakeRecognizer struct {
	mu       sync.Mutex
	plain    map[uint8]Recognition
	variants map[uint8]Recognition
	calls    map[uint8]int
	gray     map[uint8]int
}

func newFake() *fakeRecognizer {
	return &fakeRecognizer{
		plain:    map[uint8]Recognition{},
		variants: map[uint8]Recognition{},
		calls:    map[uint8]int{},
		gray:     map[uint8]int{},
	}
}

func (f *fakeRecognizer) Recognize(_ context.Context, img image.Image) (Recognition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if g, ok := img.(*image.Gray); ok {
		shade := g.GrayAt(g.Bounds().Min.X, g.Bounds().Min.Y).Y
		f.gray[shade]++
		if rec, ok := f.variants[shade]; ok {
			return rec, nil
		}
		return Recognition{}, errors.New("unreadable")
	}

	r, _, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	shade := uint8(r >> 8)
	f.calls[shade]++
	if rec, ok := f.plain[shade]; ok {
		return rec, nil
	}
	return Recognition{}, errors.New("unreadable")
}

func newTestResolver(rec Recognizer) *Resolver {
	return NewResolver(rec, Options{MinConfidence: 0.6, Workers: 4}, nil)
}

func TestResolve_TwoMatchingTiles(t *testing.T) {
	rec := newFake()
	rec.plain[10] = Recognition{Text: "5", Confidence: 0.9}
	rec.plain[20] = Recognition{Text: "5", Confidence: 0.8}

	res := newTestResolver(rec).Resolve(context.Background(), Target{Text: "5"}, [][]byte{tile(t, 10), tile(t, 20)}, false)

	assert.True(t, res.Success)
	assert.Equal(t, []int{0, 1}, res.MatchingIndices)
	assert.Equal(t, 2, res.ProcessedTiles)
	assert.Equal(t, "5", res.Target)
	assert.True(t, res.Solved())
}

func TestResolve_NormalizesHomoglyphsAndSkipsOthers(t *testing.T) {
	rec := newFake()
	rec.plain[10] = Recognition{Text: "7", Confidence: 0.95}
	rec.plain[20] = Recognition{Text: "S 0", Confidence: 0.9}
	rec.plain[30] = Recognition{Text: "５O", Confidence: 0.9}

	tiles := [][]byte{tile(t, 10), tile(t, 20), tile(t, 30)}
	res := newTestResolver(rec).Resolve(context.Background(), Target{Text: "50"}, tiles, false)

	assert.Equal(t, []int{1, 2}, res.MatchingIndices)
	assert.Equal(t, 3, res.ProcessedTiles)
}

func TestResolve_LowConfidenceExcluded(t *testing.T) {
	rec := newFake()
	rec.plain[10] = Recognition{Text: "5", Confidence: 0.9}
	rec.plain[20] = Recognition{Text: "5", Confidence: 0.3}

	res := newTestResolver(rec).Resolve(context.Background(), Target{Text: "5"}, [][]byte{tile(t, 10), tile(t, 20)}, false)

	assert.Equal(t, []int{0}, res.MatchingIndices)
	assert.Equal(t, 2, res.ProcessedTiles)
}

func TestResolve_EnhancedRetriesOnlyFailedTiles(t *testing.T) {
	rec := newFake()
	rec.plain[10] = Recognition{Text: "5", Confidence: 0.9}
	rec.plain[200] = Recognition{Text: "5", Confidence: 0.2}
	rec.variants[200] = Recognition{Text: "5", Confidence: 0.95}

	tiles := [][]byte{tile(t, 10), tile(t, 200)}

	plain := newTestResolver(rec).Resolve(context.Background(), Target{Text: "5"}, tiles, false)
	assert.Equal(t, []int{0}, plain.MatchingIndices)
	assert.Zero(t, rec.gray[10]+rec.gray[200], "standard mode must not preprocess")

	enhanced := newTestResolver(rec).Resolve(context.Background(), Target{Text: "5"}, tiles, true)
	assert.Equal(t, []int{0, 1}, enhanced.MatchingIndices)
	assert.Zero(t, rec.gray[10], "tile that passed the first pass is not retried")
	assert.Positive(t, rec.gray[200])
}

func TestResolve_ImageTarget(t *testing.T) {
	rec := newFake()
	rec.plain[50] = Recognition{Text: "8", Confidence: 0.9}
	rec.plain[10] = Recognition{Text: "B", Confidence: 0.9}
	rec.plain[20] = Recognition{Text: "3", Confidence: 0.9}

	res := newTestResolver(rec).Resolve(context.Background(), Target{Image: tile(t, 50)}, [][]byte{tile(t, 10), tile(t, 20)}, false)

	assert.True(t, res.Success)
	assert.Equal(t, "8", res.Target)
	assert.Equal(t, []int{0}, res.MatchingIndices)
}

func TestResolve_UnreadableTarget(t *testing.T) {
	rec := newFake()
	rec.plain[10] = Recognition{Text: "5", Confidence: 0.9}

	for name, target := range map[string]Target{
		"empty":       {},
		"blank text":  {Text: "   "},
		"unknown img": {Image: tile(t, 99)},
	} {
		t.Run(name, func(t *testing.T) {
			res := newTestResolver(rec).Resolve(context.Background(), target, [][]byte{tile(t, 10)}, false)
			assert.False(t, res.Success)
			assert.False(t, res.Solved())
			assert.NotNil(t, res.MatchingIndices)
			assert.Empty(t, res.MatchingIndices)
			assert.Zero(t, res.ProcessedTiles)
		})
	}
}

func TestResolve_UndecodableTileExcluded(t *testing.T) {
	rec := newFake()
	rec.plain[10] = Recognition{Text: "5", Confidence: 0.9}

	res := newTestResolver(rec).Resolve(context.Background(), Target{Text: "5"}, [][]byte{[]byte("not an image"), tile(t, 10)}, true)

	assert.Equal(t, []int{1}, res.MatchingIndices)
	assert.Equal(t, 2, res.ProcessedTiles)
}

func TestResolve_NoTilesStillSucceeds(t *testing.T) {
	res := newTestResolver(newFake()).Resolve(context.Background(), Target{Text: "5"}, nil, false)
	assert.True(t, res.Success)
	assert.False(t, res.Solved())
	assert.Zero(t, res.ProcessedTiles)
}

func TestResolve_CancelledContextSkipsTiles(t *testing.T) {
	rec := newFake()
	rec.plain[10] = Recognition{Text: "5", Confidence: 0.9}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := newTestResolver(rec).Resolve(ctx, Target{Text: "5"}, [][]byte{tile(t, 10), tile(t, 10)}, false)

	assert.False(t, res.Success)
	assert.Zero(t, res.ProcessedTiles)
	assert.Empty(t, res.MatchingIndices)
	assert.False(t, res.Solved())
}

// cancelAfter reads every tile as "5" and cancels the context after n reads.
type cancelAfter struct {
	mu     sync.Mutex
	n      int
	cancel context.CancelFunc
}

func (c *cancelAfter) Recognize(context.Context, image.Image) (Recognition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n--
	if c.n == 0 {
		c.cancel()
	}
	return Recognition{Text: "5", Confidence: 0.9}, nil
}

func TestResolve_InterruptedRunIsNotSolved(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &cancelAfter{n: 1, cancel: cancel}
	r := NewResolver(rec, Options{MinConfidence: 0.6, Workers: 1}, nil)

	tiles := [][]byte{tile(t, 10), tile(t, 10), tile(t, 10)}
	res := r.Resolve(ctx, Target{Text: "5"}, tiles, false)

	assert.False(t, res.Success)
	assert.Empty(t, res.MatchingIndices)
	assert.Equal(t, 1, res.ProcessedTiles)
	assert.False(t, res.Solved())

	full := r.Resolve(context.Background(), Target{Text: "5"}, tiles, false)
	assert.True(t, full.Solved())
	assert.Equal(t, []int{0, 1, 2}, full.MatchingIndices)
}

type panicky struct{ shade uint8 }

func (p panicky) Recognize(_ context.Context, img image.Image) (Recognition, error) {
	r, _, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	if uint8(r>>8) == p.shade {
		panic("recognizer blew up")
	}
	return Recognition{Text: "5", Confidence: 0.9}, nil
}

func TestResolve_RecognizerPanicDropsTile(t *testing.T) {
	r := NewResolver(panicky{shade: 20}, Options{MinConfidence: 0.6, Workers: 2}, nil)

	var res Result
	require.NotPanics(t, func() {
		res = r.Resolve(context.Background(), Target{Text: "5"}, [][]byte{tile(t, 10), tile(t, 20), tile(t, 30)}, false)
	})
	assert.True(t, res.Success)
	assert.Equal(t, []int{0, 2}, res.MatchingIndices)
	assert.Equal(t, 3, res.ProcessedTiles)
}
