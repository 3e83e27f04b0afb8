package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// maxDecodePixels caps the decoded size of a single image. A small
// compressed file can declare enormous dimensions.
const maxDecodePixels = 64 << 20

// DefaultWorkers is the number of assets of one batch processed at once.
const DefaultWorkers = 4

// State is the position of a batch in its commit state machine.
type State string

const (
	StatePending   State = "pending"
	StateAborting  State = "aborting"
	StateFailed    State = "failed"
	StateCommitted State = "committed"
)

// BatchReport summarizes a finished batch for an Observer.
type BatchReport struct {
	BatchID  string
	Category Category
	State    State
	Kind     Kind // empty when committed
	Assets   int
	BytesIn  int64
	BytesOut int64
	Duration time.Duration
}

// Observer receives one report per batch.
type Observer interface {
	ObserveBatch(BatchReport)
}

type nopObserver struct{}

func (nopObserver) ObserveBatch(BatchReport) {}

// Pipeline runs batches. It keeps no per-batch state between calls and is
// safe for concurrent use.
type Pipeline struct {
	router   *Router
	workers  int
	observer Observer
	logger   *slog.Logger
	swap     *SwapWriter
}

type Option func(*Pipeline)

// WithWorkers bounds how many assets of one batch are processed concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithSwapWriter replaces the writer used for in-place transforms.
func WithSwapWriter(s *SwapWriter) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.swap = s
		}
	}
}

func NewPipeline(router *Router, opts ...Option) *Pipeline {
	p := &Pipeline{
		router:   router,
		workers:  DefaultWorkers,
		observer: nopObserver{},
		logger:   slog.Default(),
		swap:     &SwapWriter{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// batch carries one Process call through its states.
type batch struct {
	id       string
	category Category
	limits   Limits
	state    State
	logger   *slog.Logger
}

func (b *batch) transition(to State) {
	b.logger.Debug("batch state", "from", b.state, "to", to)
	b.state = to
}

// Process admits, stages, validates, normalizes and recompresses assets, then
// promotes all of them into the category directory. It returns either one
// PersistedAsset per input, in input order, or a single *Error and leaves no
// file of the batch behind. It does not return before every asset of the
// batch has finished.
func (p *Pipeline) Process(ctx context.Context, category Category, assets []RawAsset, limits Limits) (*Result, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("media: unknown category %q", category)
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	b := &batch{id: uuid.NewString(), category: category, limits: limits, state: StatePending}
	b.logger = p.logger.With("batch_id", b.id, "category", category)
	start := time.Now()

	var bytesIn int64
	for _, a := range assets {
		bytesIn += int64(len(a.Data))
	}
	res, err := p.run(ctx, b, assets)

	report := BatchReport{
		BatchID:  b.id,
		Category: category,
		State:    b.state,
		Assets:   len(assets),
		BytesIn:  bytesIn,
		Duration: time.Since(start),
	}
	if err != nil {
		report.Kind = KindOf(err)
		b.logger.Info("upload batch failed", "assets", len(assets), "kind", report.Kind, "error", err)
	} else {
		for _, a := range res.Assets {
			report.BytesOut += a.Bytes
		}
		b.logger.Info("upload batch committed", "assets", len(res.Assets), "bytes_in", bytesIn, "bytes_out", report.BytesOut)
	}
	p.observer.ObserveBatch(report)
	return res, err
}

func (p *Pipeline) run(ctx context.Context, b *batch, assets []RawAsset) (res *Result, err error) {
	defer func() {
		if err != nil {
			b.transition(StateFailed)
		}
	}()

	if err := admit(b.category, assets, b.limits); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, canceledError(nil, err)
	}

	dir := p.router.stagingDir(b.id)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, batchError(KindIO, "create staging dir: %w", err)
	}
	// Everything staged for this batch goes with the directory, whatever the
	// outcome. Committed files have already been linked out of it.
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			b.logger.Error("staging cleanup failed", "dir", dir, "error", rmErr)
		}
	}()

	staged, err := stageRaw(p.router, dir, assets)
	if err != nil {
		b.transition(StateAborting)
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, s := range staged {
		g.Go(func() error {
			return p.processAsset(gctx, s, b.limits)
		})
	}
	// Commit barrier: no decision before every asset has an outcome.
	if err := g.Wait(); err != nil {
		b.transition(StateAborting)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		b.transition(StateAborting)
		return nil, canceledError(nil, err)
	}

	persisted, err := p.commit(b, staged)
	if err != nil {
		b.transition(StateAborting)
		return nil, err
	}
	b.transition(StateCommitted)
	return &Result{BatchID: b.id, Category: b.category, Assets: persisted}, nil
}

// processAsset runs the per-asset stages in order. Each stage reads the
// previous stage's output from disk.
func (p *Pipeline) processAsset(ctx context.Context, s *StagedAsset, l Limits) error {
	if err := ctx.Err(); err != nil {
		return canceledError(s, err)
	}
	if err := validateSignature(s); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return canceledError(s, err)
	}
	w, h, err := Dimensions(s.Path)
	if err != nil {
		return assetError(KindProcessing, s, err)
	}
	if int64(w)*int64(h) > maxDecodePixels {
		return assetError(KindProcessing, s, fmt.Errorf("%dx%d exceeds decode limit", w, h))
	}
	img, err := decodeImage(s.Path)
	if err != nil {
		return assetError(KindProcessing, s, err)
	}
	img = Normalize(img, l.Bounds())

	if err := ctx.Err(); err != nil {
		return canceledError(s, err)
	}
	n, err := p.swap.Swap(s.Path, func(w io.Writer) error {
		return Recompress(w, img, s.Format, l.Quality)
	})
	if err != nil {
		if isTransformErr(err) {
			return assetError(KindProcessing, s, err)
		}
		return assetError(KindIO, s, err)
	}

	s.Width, s.Height = img.Bounds().Dx(), img.Bounds().Dy()
	s.Bytes = n
	return nil
}

// commit promotes every staged asset. Links never replace an existing file.
// If any promotion fails, the files already promoted are removed again.
func (p *Pipeline) commit(b *batch, staged []*StagedAsset) ([]PersistedAsset, error) {
	destDir := p.router.Dir(b.category)
	persisted := make([]PersistedAsset, 0, len(staged))
	for _, s := range staged {
		name := p.router.FinalName(s.ID, s.Format)
		dest := filepath.Join(destDir, name)
		if err := os.Link(s.Path, dest); err != nil {
			p.rollback(b, persisted)
			return nil, assetError(KindIO, s, fmt.Errorf("promote: %w", err))
		}
		persisted = append(persisted, PersistedAsset{
			URL:    p.router.URL(b.category, name),
			Path:   dest,
			Format: s.Format,
			Width:  s.Width,
			Height: s.Height,
			Bytes:  s.Bytes,
		})
	}
	return persisted, nil
}

func (p *Pipeline) rollback(b *batch, persisted []PersistedAsset) {
	for _, a := range persisted {
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			b.logger.Error("rollback remove failed", "path", a.Path, "error", err)
		}
	}
}
