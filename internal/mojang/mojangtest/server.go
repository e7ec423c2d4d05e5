// Package mojangtest provides an in-process fake of the Mojang identity
// directory and texture host.
package mojangtest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/muandane/ziria/internal/mojang"
)

// NotchID is the stable id of the well-known "Notch" account.
var NotchID = uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5")

type Server struct {
	*httptest.Server

	mu       sync.RWMutex
	names    map[string]uuid.UUID
	textures map[uuid.UUID][]byte

	lookups   atomic.Int64
	profiles  atomic.Int64
	downloads atomic.Int64
}

// NewServer starts a fake serving the name lookup, session profile and
// texture endpoints. It is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		names:    make(map[string]uuid.UUID),
		textures: make(map[uuid.UUID][]byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/profiles/minecraft/{name}", s.handleLookup)
	mux.HandleFunc("GET /session/minecraft/profile/{id}", s.handleProfile)
	mux.HandleFunc("GET /texture/{id}", s.handleTexture)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// AddUser registers name with id and the given encoded skin texture.
func (s *Server) AddUser(name string, id uuid.UUID, texture []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[name] = id
	s.textures[id] = texture
}

// Client returns a mojang client pointed at the fake.
func (s *Server) Client() *mojang.Client {
	return mojang.NewClient(mojang.Config{
		APIURL:     s.URL,
		SessionURL: s.URL,
		HTTPClient: s.Server.Client(),
	})
}

func (s *Server) Lookups() int64   { return s.lookups.Load() }
func (s *Server) Profiles() int64  { return s.profiles.Load() }
func (s *Server) Downloads() int64 { return s.downloads.Load() }

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	s.lookups.Add(1)
	name := r.PathValue("name")

	s.mu.RLock()
	id, ok := s.names[name]
	s.mu.RUnlock()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	json.NewEncoder(w).Encode(mojang.NameProfile{
		ID:   hex(id),
		Name: name,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.profiles.Add(1)
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	_, ok := s.textures[id]
	s.mu.RUnlock()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	payload, _ := json.Marshal(mojang.TexturesPayload{
		ProfileID: hex(id),
		Textures: mojang.Textures{
			Skin: mojang.Skin{URL: s.URL + "/texture/" + hex(id)},
		},
	})
	json.NewEncoder(w).Encode(mojang.Profile{
		ID: hex(id),
		Properties: []mojang.Property{{
			Name:  mojang.TexturesProperty,
			Value: base64.StdEncoding.EncodeToString(payload),
		}},
	})
}

func (s *Server) handleTexture(w http.ResponseWriter, r *http.Request) {
	s.downloads.Add(1)
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	s.mu.RLock()
	data, ok := s.textures[id]
	s.mu.RUnlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

// hex is the undashed form the directory uses.
func hex(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}

// Skin returns a 64x64 PNG texture whose face region is filled with face
// and whose helm region is filled with helm. Every other pixel is
// transparent.
func Skin(t testing.TB, face, helm color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 8; y < 16; y++ {
		for x := 8; x < 16; x++ {
			img.SetNRGBA(x, y, face)
		}
		for x := 40; x < 48; x++ {
			img.SetNRGBA(x, y, helm)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode skin: %v", err)
	}
	return buf.Bytes()
}
