package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/wegman-software/geojson2mvt-go/internal/expression"
	"github.com/wegman-software/geojson2mvt-go/internal/index"
	"github.com/wegman-software/geojson2mvt-go/internal/logger"
	"github.com/wegman-software/geojson2mvt-go/internal/metrics"
	"github.com/wegman-software/geojson2mvt-go/internal/store"
	"github.com/wegman-software/geojson2mvt-go/internal/tile"
	"github.com/wegman-software/geojson2mvt-go/internal/transport"
	"github.com/wegman-software/geojson2mvt-go/internal/vtile"
)

// errSuperseded stops a load that lost its pending slot.
var errSuperseded = errors.New("load superseded")

// Options configures new sources.
type Options struct {
	// Transport fetches requests. Loads with a request fail without one.
	Transport transport.Transport

	// Reloader handles reloads of tiles already produced since the last
	// load. Nil selects CachedReloader.
	Reloader Reloader
}

// pendingLoad is the single outstanding load of a source. It is resolved
// exactly once, either by its worker or by whoever abandons it.
type pendingLoad struct {
	cancel    context.CancelFunc
	done      chan outcome
	once      sync.Once
	abandoned atomic.Bool
}

type outcome struct {
	result LoadResult
	err    error
}

func newPendingLoad(cancel context.CancelFunc) *pendingLoad {
	return &pendingLoad{cancel: cancel, done: make(chan outcome, 1)}
}

func (p *pendingLoad) resolve(res LoadResult, err error) {
	p.once.Do(func() {
		p.done <- outcome{result: res, err: err}
	})
}

func (p *pendingLoad) abandon() {
	p.abandoned.Store(true)
	p.cancel()
	p.resolve(LoadResult{Abandoned: true}, nil)
}

// Source owns the live index of one GeoJSON source. Loads replace the index
// as a whole; at most one load is pending at a time.
type Source struct {
	name      string
	transport transport.Transport
	reloader  Reloader

	mu         sync.Mutex
	pending    *pendingLoad
	generation uint64
	store      *store.Store
	idx        index.Index
	extractor  *tile.Extractor
	loaded     map[string]struct{}
	params     LoadParams
	features   int
}

// New creates an empty source.
func New(name string, opts Options) *Source {
	reloader := opts.Reloader
	if reloader == nil {
		reloader = CachedReloader{}
	}
	return &Source{
		name:      name,
		transport: opts.Transport,
		reloader:  reloader,
		loaded:    make(map[string]struct{}),
		params:    DefaultLoadParams(name),
	}
}

// Name returns the source name.
func (s *Source) Name() string {
	return s.name
}

// Load replaces the source's data. A load that is still pending when
// another one starts, or when the source is removed, returns
// LoadResult{Abandoned: true} and never installs its index.
func (s *Source) Load(ctx context.Context, params LoadParams) (LoadResult, error) {
	loadCtx, cancel := context.WithCancel(ctx)
	p := newPendingLoad(cancel)

	s.mu.Lock()
	if prev := s.pending; prev != nil {
		prev.abandon()
	}
	s.pending = p
	s.mu.Unlock()

	go s.run(loadCtx, p, params)

	select {
	case out := <-p.done:
		return out.result, out.err
	case <-ctx.Done():
		p.resolve(LoadResult{}, ctx.Err())
		s.clearPending(p)
		p.cancel()
		out := <-p.done
		return out.result, out.err
	}
}

// Update applies diff to the feature store and rebuilds the index with the
// options of the last successful load.
func (s *Source) Update(ctx context.Context, diff *store.Diff) (LoadResult, error) {
	s.mu.Lock()
	params := s.params
	s.mu.Unlock()

	params.Request = nil
	params.Data = nil
	params.DataDiff = diff
	if params.DataDiff == nil {
		params.DataDiff = &store.Diff{}
	}
	return s.Load(ctx, params)
}

func (s *Source) clearPending(p *pendingLoad) {
	s.mu.Lock()
	if s.pending == p {
		s.pending = nil
	}
	s.mu.Unlock()
}

func (s *Source) current(p *pendingLoad) bool {
	return s.pending == p
}

func (s *Source) run(ctx context.Context, p *pendingLoad, params LoadParams) {
	defer p.cancel()
	log := logger.Get()
	start := time.Now()

	res, err := s.load(ctx, p, params)
	switch {
	case errors.Is(err, errSuperseded):
		res, err = LoadResult{Abandoned: true}, nil
	case err != nil && ctx.Err() != nil:
		if p.abandoned.Load() {
			res, err = LoadResult{Abandoned: true}, nil
		} else {
			err = ctx.Err()
		}
	}

	s.clearPending(p)
	p.resolve(res, err)

	fields := []zap.Field{
		zap.String("source", s.name),
		zap.String("input", params.input()),
		zap.Duration("duration", time.Since(start)),
	}
	switch {
	case err != nil:
		metrics.LoadsTotal.WithLabelValues(params.input(), metrics.OutcomeFailed).Inc()
		log.Warn("Load failed", append(fields, zap.Error(err))...)
	case res.Abandoned:
		metrics.LoadsTotal.WithLabelValues(params.input(), metrics.OutcomeAbandoned).Inc()
		log.Debug("Load abandoned", fields...)
	default:
		metrics.LoadsTotal.WithLabelValues(params.input(), metrics.OutcomeOK).Inc()
		metrics.LoadDuration.WithLabelValues(params.mode().String()).Observe(time.Since(start).Seconds())
		log.Info("Load complete", fields...)
	}
}

func (s *Source) load(ctx context.Context, p *pendingLoad, params LoadParams) (LoadResult, error) {
	fc, timing, err := s.obtain(ctx, p, params)
	if err != nil {
		return LoadResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return LoadResult{}, err
	}

	// Normalized before promotion so stored features are never written to
	// once another load can see them.
	vtile.RewindCollection(fc)

	promotion := store.Promote(fc, params.PromoteID)
	s.mu.Lock()
	if !s.current(p) {
		s.mu.Unlock()
		return LoadResult{}, errSuperseded
	}
	switch pr := promotion.(type) {
	case store.Promotable:
		s.store = pr.Store
	case store.NotPromotable:
		s.store = nil
		logger.Get().Debug("Source not updateable",
			zap.String("source", s.name),
			zap.String("reason", pr.Reason))
	}
	s.mu.Unlock()

	adapter, err := newAdapter(params.ExpressionDialect)
	if err != nil {
		return LoadResult{}, err
	}
	// Filter and cluster terms are only evaluated while building.
	defer adapter.Close()

	fc, err = s.filter(fc, params.Filter, adapter)
	if err != nil {
		return LoadResult{}, err
	}

	if err := ctx.Err(); err != nil {
		return LoadResult{}, err
	}

	idx, err := index.Build(fc, params.mode(), index.Options{
		Tile:              params.tileOptions(),
		Cluster:           params.clusterOptions(),
		ClusterProperties: params.ClusterProperties,
		Expressions:       adapter,
	})
	if err != nil {
		return LoadResult{}, err
	}

	if err := s.install(p, idx, params, len(fc.Features)); err != nil {
		return LoadResult{}, err
	}

	var result LoadResult
	if params.CollectResourceTiming && len(timing) > 0 {
		result.ResourceTiming = map[string][]transport.ResourceTiming{s.name: timing}
	}
	return result, nil
}

// obtain resolves the input of a load: request, then data, then diff.
func (s *Source) obtain(ctx context.Context, p *pendingLoad, params LoadParams) (*geojson.FeatureCollection, []transport.ResourceTiming, error) {
	switch {
	case params.Request != nil:
		if s.transport == nil {
			return nil, nil, fmt.Errorf("no transport configured for '%s'", s.name)
		}
		resp, err := s.transport.Fetch(ctx, params.Request)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch data for '%s': %w", s.name, err)
		}
		fc, err := s.decode(resp.Data)
		return fc, resp.Timing, err

	case params.Data != nil:
		fc, err := s.decode(params.Data)
		return fc, nil, err

	case params.DataDiff != nil:
		fc, err := s.applyDiff(p, params.DataDiff)
		return fc, nil, err
	}

	return nil, nil, fmt.Errorf("%w: no request, data or diff given to '%s'", ErrMissingInput, s.name)
}

func (s *Source) decode(data []byte) (*geojson.FeatureCollection, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("%w: no GeoJSON data given to '%s'", ErrMissingInput, s.name)
	}

	var head struct {
		Type string `json:"type"`
	}
	if data[0] != '{' || json.Unmarshal(data, &head) != nil || head.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%w: input data given to '%s' is not a valid GeoJSON object", ErrInvalidInput, s.name)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: input data given to '%s' is not a valid GeoJSON object: %v", ErrInvalidInput, s.name, err)
	}
	return fc, nil
}

// applyDiff patches the store and materializes its features. Geometries are
// copied because the collection is normalized in place afterwards while an
// abandoned load may still be reading the stored ones.
func (s *Source) applyDiff(p *pendingLoad, d *store.Diff) (*geojson.FeatureCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(p) {
		return nil, errSuperseded
	}
	if s.store == nil {
		return nil, fmt.Errorf("%w: cannot update existing geojson data in '%s'", ErrNotUpdateable, s.name)
	}

	stats := s.store.Apply(d)
	logger.Get().Debug("Diff applied",
		zap.String("source", s.name),
		zap.Bool("cleared", stats.Cleared),
		zap.Int("removed", stats.Removed),
		zap.Int("added", stats.Added),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped))

	features := s.store.Features()
	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, len(features))
	for i, f := range features {
		c := *f
		if f.Geometry != nil {
			c.Geometry = orb.Clone(f.Geometry)
		}
		fc.Features[i] = &c
	}
	return fc, nil
}

func newAdapter(dialect string) (*expression.Adapter, error) {
	ev, err := expression.ForDialect(dialect)
	if err != nil {
		return nil, err
	}
	return expression.NewAdapter(ev), nil
}

// filter keeps the features for which expr holds at zoom 0. Features whose
// evaluation fails are dropped.
func (s *Source) filter(fc *geojson.FeatureCollection, expr interface{}, adapter *expression.Adapter) (*geojson.FeatureCollection, error) {
	if expr == nil {
		return fc, nil
	}

	compiled, err := adapter.Compile(expr, expression.TypeBoolean)
	if err != nil {
		return nil, err
	}

	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		ok, err := compiled.EvaluateBool(expression.Globals{Zoom: 0}, expression.NewFeature(f))
		if err != nil {
			logger.Get().Debug("Filter evaluation failed",
				zap.String("source", s.name),
				zap.Any("id", f.ID),
				zap.Error(err))
			continue
		}
		if ok {
			out.Features = append(out.Features, f)
		}
	}
	return out, nil
}

func (s *Source) install(p *pendingLoad, idx index.Index, params LoadParams, features int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(p) {
		return errSuperseded
	}

	s.idx = idx
	s.extractor = tile.NewExtractor(idx, params.extent())
	s.generation++
	s.loaded = make(map[string]struct{})
	s.features = features

	params.Request = nil
	params.Data = nil
	params.DataDiff = nil
	s.params = params

	metrics.IndexedFeatures.WithLabelValues(s.name).Set(float64(features))
	return nil
}

// Remove abandons the pending load, if any. Safe to call repeatedly.
func (s *Source) Remove() {
	s.mu.Lock()
	p := s.pending
	s.pending = nil
	s.mu.Unlock()

	if p != nil {
		p.abandon()
	}
}

// Info summarizes the state of a source.
type Info struct {
	Name       string `json:"name"`
	Mode       string `json:"mode,omitempty"`
	Features   int    `json:"features"`
	Updateable bool   `json:"updateable"`
	Loading    bool   `json:"loading"`
}

// Info returns a snapshot of the source state.
func (s *Source) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		Name:       s.name,
		Features:   s.features,
		Updateable: s.store != nil,
		Loading:    s.pending != nil,
	}
	if s.idx != nil {
		info.Mode = s.params.mode().String()
	}
	return info
}
