////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package emoji validates reactions against the set of emojis supported by
// the xxDK backend.
package emoji

import (
	"fmt"
	"strings"

	"github.com/forPelevin/gomoji"
	jww "github.com/spf13/jwalterweatherman"

	cEmoji "gitlab.com/elixxir/client/v4/emoji"
)

// codepoint is the lowercase, hyphen separated hex Unicode codepoints of an
// emoji (e.g., "1f44d" or "1f3f3-fe0f-200d-1f308").
type codepoint string

// Set contains the set of emojis that the backend supports.
type Set struct {
	// replacementMap contains codepoints that clients commonly send that must
	// be replaced to adhere to backend recognized codepoints.
	replacementMap map[codepoint]codepoint

	// supportedEmojis contains a list of all Unicode codepoints for the emojis
	// that are supported. This allows for quick lookup.
	supportedEmojis map[codepoint]struct{}
}

// NewSet initialises a new Emoji Set with all supported backend emojis.
func NewSet() *Set {
	return newSet(cEmoji.SupportedEmojis())
}

func newSet(list []gomoji.Emoji) *Set {
	s := &Set{
		replacementMap: map[codepoint]codepoint{
			"2764-fe0f": "2764", // ❤️ is sent with a variation selector
		},
		supportedEmojis: emojiListToMap(list),
	}
	jww.DEBUG.Printf("[EMOJI] Loaded %d supported emojis",
		len(s.supportedEmojis))
	return s
}

// IsSupported returns true if the reaction is a single emoji supported by the
// backend.
func (s *Set) IsSupported(reaction string) bool {
	if reaction == "" {
		return false
	}

	code := stringToCodePoint(reaction)
	if _, exists := s.supportedEmojis[code]; exists {
		return true
	}

	// Try the backend codepoint for emojis that differ between front and back
	if replacement, replace := s.replacementMap[code]; replace {
		_, exists := s.supportedEmojis[replacement]
		return exists
	}

	// A trailing variation selector does not change the emoji
	trimmed := codepoint(strings.TrimSuffix(string(code), "-fe0f"))
	if trimmed != code {
		_, exists := s.supportedEmojis[trimmed]
		return exists
	}

	return false
}

// Len returns the number of supported emojis.
func (s *Set) Len() int {
	return len(s.supportedEmojis)
}

// emojiListToMap constructs a map for simple lookup for gomoji.Emoji's
// Unicode codepoint.
func emojiListToMap(list []gomoji.Emoji) map[codepoint]struct{} {
	emojiMap := make(map[codepoint]struct{}, len(list))
	for _, e := range list {
		emojiMap[backToFrontCodePoint(e.CodePoint)] = struct{}{}
	}
	return emojiMap
}

// backToFrontCodePoint converts Unicode codepoint format found in gomoji.Emoji
// to the one used by codepoint. The specific conversion is making it
// lowercase and replacing " " with "-".
func backToFrontCodePoint(code string) codepoint {
	return codepoint(strings.ToLower(strings.ReplaceAll(code, " ", "-")))
}

// stringToCodePoint converts every rune in the string to its codepoint.
func stringToCodePoint(s string) codepoint {
	parts := make([]string, 0, len(s))
	for _, r := range s {
		parts = append(parts, fmt.Sprintf("%x", r))
	}
	return codepoint(strings.Join(parts, "-"))
}
