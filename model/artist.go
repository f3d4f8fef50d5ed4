package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Artist 曲目风格所对应的歌手，固定三个取值
type Artist string

const (
	ArtistTupac  Artist = "tupac"
	ArtistBiggie Artist = "biggie"
	Artist50Cent Artist = "50cent"
)

// ErrInvalidArtist is returned for any key outside the fixed artist set.
var ErrInvalidArtist = errors.New("invalid artist")

// Artists lists every supported artist in display order.
func Artists() []Artist {
	return []Artist{ArtistTupac, ArtistBiggie, Artist50Cent}
}

// ParseArtist converts a raw key into an Artist.
func ParseArtist(s string) (Artist, error) {
	switch Artist(s) {
	case ArtistTupac, ArtistBiggie, Artist50Cent:
		return Artist(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidArtist, s)
	}
}

// Valid reports whether a is one of the supported artists.
func (a Artist) Valid() bool {
	_, err := ParseArtist(string(a))
	return err == nil
}

// UnmarshalJSON rejects unknown artist keys at decode time.
func (a *Artist) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseArtist(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
