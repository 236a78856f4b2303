package lyrics

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Query is a cleaned search query.
type Query struct {
	Song     string
	Artist   string
	Featured string // featured artist pulled out of the title, if any
}

var (
	byPattern = regexp.MustCompile(`(?i)^(.+?)\s+by\s+(.+)$`)

	featParenPattern  = regexp.MustCompile(`(?i)\s*[(\[]\s*(?:feat\.?|ft\.?|featuring|with)\s+([^)\]]+)[)\]]`)
	featInlinePattern = regexp.MustCompile(`(?i)\s+(?:feat\.|ft\.|featuring)\s+(.+)$`)

	parenPattern = regexp.MustCompile(`\s*\(([^)]*)\)`)

	artistSeparator = regexp.MustCompile(`(?i)\s*(?:,|&|\bft\.|\bfeat\.|\bwith\b)\s*`)
	spaces          = regexp.MustCompile(`\s+`)
)

// Normalize cleans a raw track title and optional artist.
//
// Without an artist, "Song by Artist" is split apart. Featured-artist
// annotations are removed from the title and become the artist when none
// was given. With an artist, a parenthetical repeating the artist's names
// is removed. The title is cut at the first "-" or "|".
func Normalize(song, artist string) Query {
	song = strings.TrimSpace(song)
	artist = strings.TrimSpace(artist)
	suppliedArtist := artist != ""

	if !suppliedArtist {
		if m := byPattern.FindStringSubmatch(song); m != nil {
			song, artist = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		}
	}

	var featured string
	if m := featParenPattern.FindStringSubmatch(song); m != nil {
		featured = strings.TrimSpace(m[1])
		song = featParenPattern.ReplaceAllString(song, "")
	} else if m := featInlinePattern.FindStringSubmatch(song); m != nil {
		featured = strings.TrimSpace(m[1])
		song = featInlinePattern.ReplaceAllString(song, "")
	}
	if featured != "" && artist == "" {
		artist = featured
	}

	if suppliedArtist {
		artistWords := words(artist)
		song = parenPattern.ReplaceAllStringFunc(song, func(p string) string {
			inner := parenPattern.FindStringSubmatch(p)[1]
			if overlaps(artistWords, words(inner)) {
				return ""
			}
			return p
		})
	}

	if i := strings.IndexAny(song, "-|"); i > 0 {
		if head := strings.TrimSpace(song[:i]); head != "" {
			song = head
		}
	}

	return Query{
		Song:     collapse(song),
		Artist:   collapse(artist),
		Featured: collapse(featured),
	}
}

// SplitArtists splits an artist credit on ",", "&", "ft.", "feat." and "with".
func SplitArtists(artist string) []string {
	var out []string
	for _, part := range artistSeparator.Split(artist, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// overlaps reports whether at least min(2, len(want)) of want appear in have.
func overlaps(want, have []string) bool {
	if len(want) == 0 {
		return false
	}
	set := make(map[string]bool, len(have))
	for _, w := range have {
		set[w] = true
	}
	matched := 0
	for _, w := range want {
		if set[w] {
			matched++
		}
	}
	return matched >= min(2, len(want))
}

// words lowercases s, strips diacritics and splits it on anything that is
// not a letter or digit.
func words(s string) []string {
	return strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var diacritics = runes.Remove(runes.In(unicode.Mn))

// fold lowercases s and strips combining marks, so "Ledé" compares equal to "lede".
func fold(s string) string {
	t := transform.Chain(norm.NFD, diacritics, norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func collapse(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}
