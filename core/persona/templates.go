package persona

import (
	"fmt"
	"strings"

	"RapLab/model"
)

// promptSlot marks where the user's prompt is substituted.
const promptSlot = "{{prompt}}"

const tupacTemplate = `[Verse 1]
Through the concrete grows a rose, defying all the odds
In these streets where dreams get lost, still I keep my eyes on God
{{prompt}} got me thinking 'bout the way we live our lives
California sun don't shine the same when homies say goodbye

[Chorus]
Keep ya head up, even when the road gets rough
Through the struggle and the pain, we show the world we tough enough
From the block to the top, thug life ain't no game
But we rise from the ashes, burning bright like flame

[Verse 2]
Mama told me there'd be days like this
When the world turns cold and love gets dismissed
But I carry her strength in every word I spit
Revolutionary minds don't quit, nah we don't quit

[Outro]
To all my soldiers holding it down in the struggle
Stay strong, stay true, we in this together`

const biggieTemplate = `[Verse 1]
It was all a dream, I used to read Word Up magazine
{{prompt}} on my mind, now I'm living like a king
Brooklyn streets taught me everything I know
From the corner store stories to the penthouse flow

[Chorus]
Hypnotize ya with the flow, baby baby
Biggie Smalls is the illest, call me crazy
From the gutter to the glory, that's my story
Big Poppa rising, basking in the glory

[Verse 2]
Suede Timbs on my feet, Coogi sweater looking neat
Every bar I deliver, competition taste defeat
Players hate but they can't replicate this smooth delivery
Brooklyn's finest storyteller, making history

[Bridge]
Mo' money, mo' problems, that's the truth they say
But I'd rather cry in the Bentley any day`

const fiftyTemplate = `[Verse 1]
Yeah, G-Unit in the building, you know how we do
{{prompt}} on the agenda, watch me push on through
Bulletproof mentality, I survived the game
50 Cent on the track, things ain't never the same

[Chorus]
In da club, bottle full of bub
Look homie, we about to turn it up
From the streets to the suites, we made it through
G-Unit riders, we coming for you

[Verse 2]
They shot me nine times, still I'm standing tall
Queens representative, I won't ever fall
Get rich or die trying, that's the motto we live
Every verse is a blessing, every bar is a gift

[Outro]
Southside, let's go!`

// SampleLyrics fills the artist's fixed template with prompt.
// The prompt lands verbatim at the start of a first-verse line:
// line 3 for tupac, line 2 for biggie and 50cent.
func SampleLyrics(artist model.Artist, prompt string) (string, error) {
	var tpl string
	switch artist {
	case model.ArtistTupac:
		tpl = tupacTemplate
	case model.ArtistBiggie:
		tpl = biggieTemplate
	case model.Artist50Cent:
		tpl = fiftyTemplate
	default:
		return "", fmt.Errorf("%w: %q", model.ErrInvalidArtist, artist)
	}
	// 只替换一次，避免 prompt 中包含占位符时被重复展开
	return strings.Replace(tpl, promptSlot, prompt, 1), nil
}
