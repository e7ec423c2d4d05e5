// Package identity turns the user-supplied part of a render URL into either
// a stable profile id or a display name, derives cache keys from it and
// resolves names to ids.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Kind tags which variant a Token holds.
type Kind int

const (
	KindStableID Kind = iota + 1
	KindDisplayName
)

func (k Kind) String() string {
	switch k {
	case KindStableID:
		return "stable_id"
	case KindDisplayName:
		return "display_name"
	default:
		return "unknown"
	}
}

// Token is either a stable id or a display name. It is parsed once at the
// request boundary and never re-interpreted downstream.
type Token struct {
	kind Kind
	id   uuid.UUID
	name string
}

// ErrEmptyToken is returned by ParseToken for blank input.
var ErrEmptyToken = errors.New("identity: empty token")

// ErrNotFound is returned by Resolve when the directory has no such user.
var ErrNotFound = errors.New("identity: user not found")

// keySuffixLen is how many trailing characters of the hyphenated id form
// the cache key. This is the last segment of the uuid minus its first six
// characters.
const keySuffixLen = 6

// FromID wraps a stable id.
func FromID(id uuid.UUID) Token {
	return Token{kind: KindStableID, id: id}
}

// FromName wraps a display name.
func FromName(name string) Token {
	return Token{kind: KindDisplayName, name: name}
}

// ParseToken classifies raw as a stable id (any form accepted by
// uuid.Parse, including Mojang's undashed form) or a display name.
func ParseToken(raw string) (Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Token{}, ErrEmptyToken
	}
	if id, err := uuid.Parse(raw); err == nil {
		return FromID(id), nil
	}
	return FromName(raw), nil
}

func (t Token) Kind() Kind { return t.kind }

// ID returns the stable id and whether the token holds one.
func (t Token) ID() (uuid.UUID, bool) { return t.id, t.kind == KindStableID }

// Name returns the display name and whether the token holds one.
func (t Token) Name() (string, bool) { return t.name, t.kind == KindDisplayName }

func (t Token) String() string {
	if t.kind == KindStableID {
		return t.id.String()
	}
	return t.name
}

// CacheKey derives the cache key for a render of t.
//
// Stable ids use the last six characters of their hyphenated form, so two
// ids sharing that suffix share a key. Display names use the name minus its
// last three characters followed by its length. The helm variant is
// appended as "t" or "f".
func CacheKey(t Token, helm bool) string {
	flag := strconv.FormatBool(helm)[:1]
	switch t.kind {
	case KindStableID:
		s := t.id.String()
		return s[len(s)-keySuffixLen:] + "-" + flag
	default:
		n := t.name
		prefix := n
		if len(n) >= 3 {
			prefix = n[:len(n)-3]
		}
		return prefix + strconv.Itoa(len(n)) + "-" + flag
	}
}

// NameLookup maps a display name to a stable id. Implementations return
// uuid.Nil and a nil error when the directory has no such user; errors are
// reserved for transport and payload failures.
type NameLookup interface {
	LookupName(ctx context.Context, name string) (uuid.UUID, error)
}

// Resolver turns tokens into stable ids.
type Resolver struct {
	lookup NameLookup
}

func NewResolver(lookup NameLookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve passes stable ids through and looks display names up. The nil
// uuid is treated as "not found" in both cases.
func (r *Resolver) Resolve(ctx context.Context, t Token) (uuid.UUID, error) {
	switch t.kind {
	case KindStableID:
		if t.id == uuid.Nil {
			return uuid.Nil, fmt.Errorf("%w: nil id", ErrNotFound)
		}
		return t.id, nil
	case KindDisplayName:
		id, err := r.lookup.LookupName(ctx, t.name)
		if err != nil {
			return uuid.Nil, fmt.Errorf("lookup %q: %w", t.name, err)
		}
		if id == uuid.Nil {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrNotFound, t.name)
		}
		return id, nil
	default:
		return uuid.Nil, ErrEmptyToken
	}
}
