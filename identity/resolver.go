////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package identity derives the display identity (codename and color) of a
// participant from their public key and codeset version.
package identity

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/client/v4/bindings"
)

const (
	// DefaultColor is the display color used when none can be derived.
	DefaultColor = 0xE97451

	// UnknownName is the display name used when the identity cannot be
	// constructed and no nickname was supplied.
	UnknownName = "Unknown"
)

// ConstructFunc constructs the JSON identity envelope for a public key and
// codeset version.
type ConstructFunc func(pubKey []byte, codeset int) ([]byte, error)

// Envelope is the JSON identity returned by a ConstructFunc.
//
// Example JSON:
//
//	{
//	  "PubKey": "4Ez2VPb9LZoXNJfImNEvM4wNQ7Tm/6RE9bBrWTVyZRk=",
//	  "Codename": "zoneWinterNeglect",
//	  "Color": "0x7ebcd1",
//	  "Extension": "kCpHjoO",
//	  "CodesetVersion": 0
//	}
type Envelope struct {
	PubKey         []byte `json:"PubKey"`
	Codename       string `json:"Codename"`
	Color          string `json:"Color"`
	Extension      string `json:"Extension"`
	CodesetVersion uint8  `json:"CodesetVersion"`
}

// Display is the resolved display identity of a participant.
type Display struct {
	Codename  string
	Color     int
	Extension string
}

// Resolver turns public keys into display identities.
type Resolver struct {
	construct ConstructFunc

	// cache maps cacheKey to Display. It is nil when memoization is off.
	cache *sync.Map
}

// NewResolver returns a Resolver that uses construct to build identities. If
// construct is nil, bindings.ConstructIdentity is used. When memoize is set,
// successful resolutions are cached for the lifetime of the Resolver; an
// identity never changes for a given key and codeset.
func NewResolver(construct ConstructFunc, memoize bool) *Resolver {
	if construct == nil {
		construct = bindings.ConstructIdentity
	}
	r := &Resolver{construct: construct}
	if memoize {
		r.cache = &sync.Map{}
	}
	return r
}

// Resolve constructs the identity for the public key and codeset. Returns an
// error if the identity cannot be constructed or its envelope parsed. A color
// that cannot be parsed is replaced with DefaultColor.
func (r *Resolver) Resolve(pubKey []byte, codeset uint8) (Display, error) {
	key := cacheKey(pubKey, codeset)
	if r.cache != nil {
		if d, exists := r.cache.Load(key); exists {
			return d.(Display), nil
		}
	}

	identityJSON, err := r.construct(pubKey, int(codeset))
	if err != nil {
		return Display{}, errors.Wrap(err, "failed to construct identity")
	}

	var e Envelope
	if err = json.Unmarshal(identityJSON, &e); err != nil {
		return Display{}, errors.Wrap(err, "failed to unmarshal identity")
	}
	if e.Codename == "" {
		return Display{}, errors.New("identity has no codename")
	}

	color, err := ParseColor(e.Color)
	if err != nil {
		jww.WARN.Printf("[IDENTITY] Using default color for %s: %+v",
			e.Codename, err)
		color = DefaultColor
	}

	d := Display{Codename: e.Codename, Color: color, Extension: e.Extension}
	if r.cache != nil {
		r.cache.Store(key, d)
	}
	return d, nil
}

// ResolveOrFallback is Resolve, except that it never fails. On failure, the
// trimmed nickname (or UnknownName if it is empty) is returned with
// DefaultColor.
func (r *Resolver) ResolveOrFallback(
	pubKey []byte, codeset uint8, nickname string) Display {
	d, err := r.Resolve(pubKey, codeset)
	if err == nil {
		return d
	}

	jww.WARN.Printf("[IDENTITY] Falling back to nickname %q: %+v",
		nickname, err)
	return Fallback(nickname)
}

// Fallback returns the display used when no identity can be constructed.
func Fallback(nickname string) Display {
	name := strings.TrimSpace(nickname)
	if name == "" {
		name = UnknownName
	}
	return Display{Codename: name, Color: DefaultColor}
}

// ParseColor parses a hex color string. The string may be prefixed with "0x"
// or "#".
func ParseColor(s string) (int, error) {
	hex := strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(hex, "0x"), strings.HasPrefix(hex, "0X"):
		hex = hex[2:]
	case strings.HasPrefix(hex, "#"):
		hex = hex[1:]
	}
	if hex == "" {
		return 0, errors.Errorf("empty color %q", s)
	}

	c, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid color %q", s)
	}
	return int(c), nil
}

func cacheKey(pubKey []byte, codeset uint8) string {
	return string(append([]byte{codeset}, pubKey...))
}
