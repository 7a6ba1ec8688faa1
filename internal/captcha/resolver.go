package captcha

import (
	"context"
	"image"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options tunes tile recognition.
type Options struct {
	// MinConfidence is the lowest recognition confidence a tile may have to count.
	MinConfidence float64
	// Workers bounds concurrent recognizer calls.
	Workers int
}

// Target describes what the challenge asks for. Text wins when both are set.
type Target struct {
	Text  string
	Image []byte
}

// Result is the outcome of one resolution.
type Result struct {
	Target          string `json:"target"`
	MatchingIndices []int  `json:"matching_indices"`
	ProcessedTiles  int    `json:"processed_tiles"`
	Success         bool   `json:"success"`
}

// Solved reports whether the result can be submitted to the portal.
func (r Result) Solved() bool {
	return r.Success && len(r.MatchingIndices) > 0
}

// Resolver selects the tiles of an image-grid challenge whose text matches the target.
type Resolver struct {
	rec  Recognizer
	opts Options
	log  *zap.Logger
}

func NewResolver(rec Recognizer, opts Options, log *zap.Logger) *Resolver {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{rec: rec, opts: opts, log: log}
}

// Resolve recognizes every tile and returns the ascending indices of those
// matching the target. Per-tile failures only exclude that tile. Success is
// false when no usable target text could be obtained or when ctx ended before
// every tile was read; a partial answer is never reported.
func (r *Resolver) Resolve(ctx context.Context, target Target, tiles [][]byte, enhanced bool) Result {
	res := Result{MatchingIndices: []int{}}

	want, ok := r.targetText(ctx, target, enhanced)
	if !ok {
		r.log.Warn("captcha target unreadable")
		return res
	}
	res.Target = want

	texts := make([]string, len(tiles))
	var processed atomic.Int64
	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for i, raw := range tiles {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			processed.Add(1)
			texts[i] = r.readBytes(ctx, raw, enhanced)
			return nil
		})
	}
	_ = g.Wait()
	res.ProcessedTiles = int(processed.Load())

	if ctx.Err() != nil || res.ProcessedTiles < len(tiles) {
		r.log.Warn("captcha resolution interrupted",
			zap.Int("processed", res.ProcessedTiles),
			zap.Int("tiles", len(tiles)),
			zap.Error(ctx.Err()))
		return res
	}
	res.Success = true

	for i, text := range texts {
		if text != "" && text == want {
			res.MatchingIndices = append(res.MatchingIndices, i)
		}
	}

	r.log.Debug("captcha resolved",
		zap.String("target", want),
		zap.Ints("matches", res.MatchingIndices),
		zap.Int("processed", res.ProcessedTiles),
		zap.Int("tiles", len(tiles)))
	return res
}

func (r *Resolver) targetText(ctx context.Context, target Target, enhanced bool) (string, bool) {
	if target.Text != "" {
		want := Normalize(target.Text)
		return want, want != ""
	}
	if len(target.Image) == 0 {
		return "", false
	}
	want := r.readBytes(ctx, target.Image, enhanced)
	return want, want != ""
}

// readBytes returns the normalized text of one image, or "" if it is unreadable
// or below the confidence threshold. A panicking recognizer drops the image.
func (r *Resolver) readBytes(ctx context.Context, raw []byte, enhanced bool) (text string) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("recognizer panicked, image skipped", zap.Any("panic", p))
			text = ""
		}
	}()

	img, err := DecodeImage(raw)
	if err != nil {
		r.log.Debug("tile skipped", zap.Error(err))
		return ""
	}
	return r.read(ctx, img, enhanced)
}

func (r *Resolver) read(ctx context.Context, img image.Image, enhanced bool) string {
	if text, ok := r.recognize(ctx, img); ok {
		return text
	}
	if !enhanced {
		return ""
	}

	// Retry on preprocessed copies and keep the most confident usable reading.
	var best string
	var bestConf float64
	for _, v := range variants(img) {
		if ctx.Err() != nil {
			break
		}
		rec, err := r.rec.Recognize(ctx, v)
		if err != nil {
			continue
		}
		text := Normalize(rec.Text)
		if text == "" || rec.Confidence < r.opts.MinConfidence {
			continue
		}
		if best == "" || rec.Confidence > bestConf {
			best, bestConf = text, rec.Confidence
		}
	}
	return best
}

func (r *Resolver) recognize(ctx context.Context, img image.Image) (string, bool) {
	rec, err := r.rec.Recognize(ctx, img)
	if err != nil {
		r.log.Debug("recognition failed", zap.Error(err))
		return "", false
	}
	text := Normalize(rec.Text)
	if text == "" || rec.Confidence < r.opts.MinConfidence {
		return "", false
	}
	return text, true
}
