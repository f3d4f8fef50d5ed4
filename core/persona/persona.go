// Package persona holds the fixed artist style descriptors and the
// template lyrics used when no language model is configured.
package persona

import (
	"fmt"
	"strings"

	"RapLab/model"
)

// Style describes how a persona writes.
type Style struct {
	Artist      model.Artist `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"style"`
	Keywords    []string     `json:"keywords"`
}

var (
	tupacStyle = Style{
		Artist:      model.ArtistTupac,
		Name:        "Tupac Shakur",
		Description: "poetic, socially conscious, emotional depth, west coast flow, themes of struggle, survival, and social justice. Uses vivid imagery and metaphors. References to thug life, California, and street poetry.",
		Keywords:    []string{"California love", "keep ya head up", "thug life", "changes", "dear mama"},
	}
	biggieStyle = Style{
		Artist:      model.ArtistBiggie,
		Name:        "The Notorious B.I.G.",
		Description: "smooth storytelling, intricate wordplay, east coast flow, luxurious imagery mixed with street narratives. Effortless delivery with complex rhyme schemes and vivid storytelling.",
		Keywords:    []string{"Brooklyn", "hypnotize", "big poppa", "ready to die", "mo money"},
	}
	fiftyStyle = Style{
		Artist:      model.Artist50Cent,
		Name:        "50 Cent",
		Description: "catchy hooks, club-ready beats, confident swagger, street hustler narratives. Direct and punchy lyrics with memorable one-liners and aggressive delivery.",
		Keywords:    []string{"get rich", "in da club", "candy shop", "G-Unit", "bulletproof"},
	}
)

// StyleFor returns the descriptor of artist. The keyword slice is a copy.
func StyleFor(artist model.Artist) (Style, error) {
	var s Style
	switch artist {
	case model.ArtistTupac:
		s = tupacStyle
	case model.ArtistBiggie:
		s = biggieStyle
	case model.Artist50Cent:
		s = fiftyStyle
	default:
		return Style{}, fmt.Errorf("%w: %q", model.ErrInvalidArtist, artist)
	}
	s.Keywords = append([]string(nil), s.Keywords...)
	return s, nil
}

// Catalog returns every persona in display order.
func Catalog() []Style {
	out := make([]Style, 0, 3)
	for _, a := range model.Artists() {
		s, _ := StyleFor(a)
		out = append(out, s)
	}
	return out
}

// SystemPrompt builds the instruction sent to the lyrics model.
func SystemPrompt(s Style) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a legendary hip-hop lyricist channeling the spirit of %s.\n", s.Name)
	fmt.Fprintf(&b, "Write original rap lyrics in their distinctive style: %s\n\n", s.Description)
	fmt.Fprintf(&b, "Key elements to incorporate: %s\n\n", strings.Join(s.Keywords, ", "))
	b.WriteString("Rules:\n")
	b.WriteString("- Write 2-3 verses with a hook/chorus\n")
	b.WriteString("- Stay true to the artist's flow and themes\n")
	b.WriteString("- Make it feel authentic to their era and style\n")
	b.WriteString("- Include vivid imagery and wordplay")
	return b.String()
}
