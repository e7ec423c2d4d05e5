package mojang

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// TexturesProperty is the profile property carrying the skin descriptor.
const TexturesProperty = "textures"

// ErrNoTextures is returned when a profile carries no usable textures payload.
var ErrNoTextures = errors.New("mojang: profile has no textures")

// NameProfile is the body returned by the name lookup endpoint.
type NameProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Profile is a session-server profile.
type Profile struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Properties []Property `json:"properties"`
}

type Property struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Signature string `json:"signature,omitempty"`
}

// TexturesPayload is the decoded value of the textures property.
type TexturesPayload struct {
	Timestamp   int64    `json:"timestamp"`
	ProfileID   string   `json:"profileId"`
	ProfileName string   `json:"profileName"`
	Textures    Textures `json:"textures"`
}

type Textures struct {
	Skin Skin  `json:"SKIN"`
	Cape *Cape `json:"CAPE,omitempty"`
}

type Skin struct {
	URL      string    `json:"url"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Metadata.Model is "slim" for Alex-style skins and empty otherwise.
type Metadata struct {
	Model string `json:"model"`
}

type Cape struct {
	URL string `json:"url"`
}

// texturesProperty picks the textures property, falling back to the first
// property when none is named.
func (p *Profile) texturesProperty() (Property, bool) {
	if len(p.Properties) == 0 {
		return Property{}, false
	}
	for _, prop := range p.Properties {
		if prop.Name == TexturesProperty {
			return prop, true
		}
	}
	return p.Properties[0], true
}

// Textures decodes the base64 JSON textures payload of the profile.
func (p *Profile) Textures() (*TexturesPayload, error) {
	prop, ok := p.texturesProperty()
	if !ok || prop.Value == "" {
		return nil, ErrNoTextures
	}

	raw, err := base64.StdEncoding.DecodeString(prop.Value)
	if err != nil {
		return nil, fmt.Errorf("decode textures property: %w", err)
	}

	var payload TexturesPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse textures property: %w", err)
	}
	if payload.Textures.Skin.URL == "" {
		return nil, ErrNoTextures
	}
	return &payload, nil
}
