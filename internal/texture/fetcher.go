// Package texture resolves a stable id to a decoded 64x64 skin texture.
package texture

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/google/uuid"

	"github.com/muandane/ziria/internal/imaging"
	"github.com/muandane/ziria/internal/mojang"
)

// ErrorKind classifies a failed fetch.
type ErrorKind int

const (
	ProfileNotFound ErrorKind = iota + 1
	NetworkError
	DecodeError
)

func (k ErrorKind) String() string {
	switch k {
	case ProfileNotFound:
		return "profile_not_found"
	case NetworkError:
		return "network"
	case DecodeError:
		return "decode"
	default:
		return "unknown"
	}
}

// FetchError is the only error type returned by Fetcher.Fetch.
type FetchError struct {
	Kind ErrorKind
	ID   uuid.UUID
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch texture %s: %s: %v", e.ID, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Directory is the subset of the Mojang client the fetcher needs.
type Directory interface {
	Profile(ctx context.Context, id uuid.UUID) (*mojang.Profile, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Fetcher performs no retries; every upstream failure is terminal.
type Fetcher struct {
	dir Directory
}

func NewFetcher(dir Directory) *Fetcher {
	return &Fetcher{dir: dir}
}

// Fetch returns the skin texture of id as a 64x64 NRGBA raster.
func (f *Fetcher) Fetch(ctx context.Context, id uuid.UUID) (*image.NRGBA, error) {
	raw, err := f.FetchRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	tex, err := imaging.DecodeTexture(raw)
	if err != nil {
		return nil, &FetchError{Kind: DecodeError, ID: id, Err: err}
	}
	return tex, nil
}

// FetchRaw returns the undecoded texture bytes of id.
func (f *Fetcher) FetchRaw(ctx context.Context, id uuid.UUID) ([]byte, error) {
	profile, err := f.dir.Profile(ctx, id)
	if errors.Is(err, mojang.ErrNotFound) {
		return nil, &FetchError{Kind: ProfileNotFound, ID: id, Err: err}
	}
	if err != nil {
		return nil, &FetchError{Kind: NetworkError, ID: id, Err: err}
	}

	textures, err := profile.Textures()
	if errors.Is(err, mojang.ErrNoTextures) {
		return nil, &FetchError{Kind: ProfileNotFound, ID: id, Err: err}
	}
	if err != nil {
		return nil, &FetchError{Kind: DecodeError, ID: id, Err: err}
	}

	raw, err := f.dir.Download(ctx, textures.Textures.Skin.URL)
	if errors.Is(err, mojang.ErrNotFound) {
		return nil, &FetchError{Kind: ProfileNotFound, ID: id, Err: err}
	}
	if err != nil {
		return nil, &FetchError{Kind: NetworkError, ID: id, Err: err}
	}
	return raw, nil
}
