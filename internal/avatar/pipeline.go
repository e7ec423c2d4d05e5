// Package avatar renders face avatars and whole skins, caching the 8x8
// base render of every avatar.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"

	"github.com/muandane/ziria/internal/cache"
	"github.com/muandane/ziria/internal/identity"
	"github.com/muandane/ziria/internal/imaging"
	"github.com/muandane/ziria/internal/texture"
)

// Size limits.
const (
	MinAvatarSize  = imaging.BaseSize
	MaxAvatarSize  = 512
	MinSkinSize    = imaging.TextureSize
	MaxSkinSize    = 512
	ContentTypePNG = "image/png"

	storeTimeout = 10 * time.Second
)

var (
	cacheHits         = metrics.GetOrCreateCounter("avatar_cache_hits_total")
	cacheMisses       = metrics.GetOrCreateCounter("avatar_cache_misses_total")
	cacheGetErrors    = metrics.GetOrCreateCounter(`avatar_cache_errors_total{op="get"}`)
	cacheSetErrors    = metrics.GetOrCreateCounter(`avatar_cache_errors_total{op="set"}`)
	cacheDecodeErrors = metrics.GetOrCreateCounter(`avatar_cache_errors_total{op="decode"}`)
)

type Resolver interface {
	Resolve(ctx context.Context, t identity.Token) (uuid.UUID, error)
}

type TextureSource interface {
	Fetch(ctx context.Context, id uuid.UUID) (*image.NRGBA, error)
}

// Cache holds complete base-size PNGs. Get returns cache.ErrMiss for
// absent keys.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, encoded []byte) error
}

// Recorder is told about every avatar cache lookup.
type Recorder interface {
	RecordHit()
	RecordMiss()
}

type noopRecorder struct{}

func (noopRecorder) RecordHit()  {}
func (noopRecorder) RecordMiss() {}

type AvatarRequest struct {
	Token identity.Token
	Size  int
	Helm  bool
}

type SkinRequest struct {
	Token identity.Token
	Size  int
}

type Result struct {
	Data        []byte
	ContentType string
	CacheHit    bool
}

type Options struct {
	Logger   *slog.Logger
	Recorder Recorder
}

// Pipeline is safe for concurrent use. Cache writes after a miss run in
// the background; Wait blocks until they are done.
type Pipeline struct {
	resolver Resolver
	textures TextureSource
	cache    Cache
	recorder Recorder
	logger   *slog.Logger

	pending sync.WaitGroup
}

func New(resolver Resolver, textures TextureSource, c Cache, opts Options) *Pipeline {
	p := &Pipeline{
		resolver: resolver,
		textures: textures,
		cache:    c,
		recorder: opts.Recorder,
		logger:   opts.Logger,
	}
	if p.recorder == nil {
		p.recorder = noopRecorder{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

func ValidateAvatarSize(size int) error {
	if size < MinAvatarSize || size > MaxAvatarSize || size%imaging.BaseSize != 0 {
		return &ValidationError{
			Field:   "size",
			Message: fmt.Sprintf("must be between %d and %d and divisible by %d", MinAvatarSize, MaxAvatarSize, imaging.BaseSize),
		}
	}
	return nil
}

func ValidateSkinSize(size int) error {
	if size < MinSkinSize || size > MaxSkinSize || size%imaging.TextureSize != 0 {
		return &ValidationError{
			Field:   "size",
			Message: fmt.Sprintf("must be between %d and %d and divisible by %d", MinSkinSize, MaxSkinSize, imaging.TextureSize),
		}
	}
	return nil
}

// Avatar renders the face of req.Token at req.Size. The cache is consulted
// before the token is resolved, so a hit needs no upstream call at all.
func (p *Pipeline) Avatar(ctx context.Context, req AvatarRequest) (*Result, error) {
	if err := ValidateAvatarSize(req.Size); err != nil {
		return nil, err
	}

	key := identity.CacheKey(req.Token, req.Helm)
	logger := p.logger.With("key", key, "token", req.Token.String(), "size", req.Size, "helm", req.Helm)

	if res, ok := p.fromCache(ctx, key, req.Size, logger); ok {
		return res, nil
	}

	p.recorder.RecordMiss()
	cacheMisses.Inc()
	logger.Debug("avatar cache miss")

	tex, err := p.texture(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	base := imaging.Flatten(imaging.Compose(tex, req.Helm))
	encoded, err := imaging.Encode(base)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	p.store(ctx, key, encoded, logger)

	if req.Size == imaging.BaseSize {
		return &Result{Data: encoded, ContentType: ContentTypePNG}, nil
	}
	data, err := imaging.Encode(imaging.Resize(base, req.Size))
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	return &Result{Data: data, ContentType: ContentTypePNG}, nil
}

// fromCache serves a hit. Cache failures and corrupt entries are logged and
// reported as a miss so the avatar is rendered again.
func (p *Pipeline) fromCache(ctx context.Context, key string, size int, logger *slog.Logger) (*Result, bool) {
	data, err := p.cache.Get(ctx, key)
	switch {
	case errors.Is(err, cache.ErrMiss):
		return nil, false
	case err != nil:
		cacheGetErrors.Inc()
		logger.Warn("cache unavailable, rendering without it", "error", err)
		return nil, false
	}

	base, err := imaging.Decode(data)
	if err == nil && base.Bounds() != image.Rect(0, 0, imaging.BaseSize, imaging.BaseSize) {
		err = fmt.Errorf("unexpected dimensions %v", base.Bounds().Size())
	}
	if err != nil {
		cacheDecodeErrors.Inc()
		logger.Error("discarding cache entry", "error", &CacheCorruptionError{Key: key, Err: err})
		return nil, false
	}

	p.recorder.RecordHit()
	cacheHits.Inc()
	logger.Debug("avatar cache hit")

	if size == imaging.BaseSize {
		return &Result{Data: data, ContentType: ContentTypePNG, CacheHit: true}, true
	}
	resized, err := imaging.Encode(imaging.Resize(base, size))
	if err != nil {
		logger.Error("failed to encode cached avatar", "error", err)
		return nil, false
	}
	return &Result{Data: resized, ContentType: ContentTypePNG, CacheHit: true}, true
}

// store writes the base render in the background. The write outlives the
// request context but not storeTimeout.
func (p *Pipeline) store(ctx context.Context, key string, encoded []byte, logger *slog.Logger) {
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		defer cancel()

		if err := p.cache.Set(ctx, key, encoded); err != nil {
			cacheSetErrors.Inc()
			logger.Error("failed to cache avatar", "error", err)
			return
		}
		logger.Debug("avatar cached", "bytes", len(encoded))
	}()
}

// Wait blocks until every background cache write has finished.
func (p *Pipeline) Wait() {
	p.pending.Wait()
}

// Skin renders the whole texture of req.Token at req.Size. Skins are not
// cached.
func (p *Pipeline) Skin(ctx context.Context, req SkinRequest) (*Result, error) {
	if err := ValidateSkinSize(req.Size); err != nil {
		return nil, err
	}

	tex, err := p.texture(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	data, err := imaging.Encode(imaging.Resize(tex, req.Size))
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	return &Result{Data: data, ContentType: ContentTypePNG}, nil
}

// texture resolves t and fetches its skin, translating failures into the
// package's error types.
func (p *Pipeline) texture(ctx context.Context, t identity.Token) (*image.NRGBA, error) {
	id, err := p.resolver.Resolve(ctx, t)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		return nil, &NotFoundError{Resource: "user", ID: t.String()}
	case errors.Is(err, identity.ErrEmptyToken):
		return nil, &ValidationError{Field: "token", Message: "cannot be empty"}
	case err != nil:
		return nil, &UpstreamError{Stage: StageDirectory, Err: err}
	}

	tex, err := p.textures.Fetch(ctx, id)
	if err == nil {
		return tex, nil
	}

	var fetchErr *texture.FetchError
	if !errors.As(err, &fetchErr) {
		return nil, &UpstreamError{Stage: StageTexture, Err: err}
	}
	switch fetchErr.Kind {
	case texture.ProfileNotFound:
		return nil, &NotFoundError{Resource: "texture", ID: id.String()}
	case texture.DecodeError:
		return nil, &UpstreamError{Stage: StageDecode, Err: err}
	default:
		return nil, &UpstreamError{Stage: StageTexture, Err: err}
	}
}
