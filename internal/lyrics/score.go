package lyrics

import (
	"regexp"
	"strings"
)

var (
	// Matched against folded text, so accents are already stripped.
	translationPattern = regexp.MustCompile(`(?i)\b(?:translations?|traduccion|traducao|traduction|ubersetzung|traduzione|vertaling|t[łl]umaczenie|ceviri|terjemahan|romanized|romanization)\b|перевод|翻訳|번역|` +
		`\b(?:english|spanish|espanol|french|francais|german|deutsch|portuguese|italian|russian|turkish|polish|japanese|korean|chinese|arabic|hindi|dutch)\s+(?:version|translation)\b`)

	coverPattern = regexp.MustCompile(`(?i)\b(?:cover|remix|live|acoustic|instrumental|karaoke|tribute|with)\b|\bfeat\.`)

	curatorPattern = regexp.MustCompile(`(?i)\b(?:playlist|various artists|genius|compilation|top hits|spotify)\b`)
)

// Score weights.
const (
	translationPenalty      = -15
	collabTranslationExtra  = -25
	coverPenalty            = -8
	curatorPenalty          = -15
	songWordBonus           = 3
	artistWordInTitleBonus  = 2
	exactTitleArtistBonus   = 15
	exactTitleBonus         = 8
	exactArtistBonus        = 8
	primaryArtistBonus      = 5
	featuredArtistWordBonus = 2
)

// Score rates how well a candidate matches the query. Higher is better;
// the result may be negative.
func Score(c Candidate, q Query) int {
	title := fold(c.Title)
	artist := fold(c.Artist)
	both := title + " " + artist
	qSong := fold(q.Song)
	qArtist := fold(q.Artist)

	score := 0

	translation := translationPattern.MatchString(both)
	if translation {
		score += translationPenalty
		if q.Artist != "" && overlapsText(SplitArtists(qArtist), both) {
			score += collabTranslationExtra
		}
	}
	if coverPattern.MatchString(both) {
		score += coverPenalty
	}
	if curatorPattern.MatchString(artist) {
		score += curatorPenalty
	}

	titleWords := make(map[string]bool)
	for _, w := range words(c.Title) {
		titleWords[w] = true
	}
	for _, w := range words(q.Song) {
		if titleWords[w] {
			score += songWordBonus
		}
	}
	for _, w := range words(q.Artist) {
		if titleWords[w] {
			score += artistWordInTitleBonus
		}
	}

	switch {
	case title == qSong && qArtist != "" && artist == qArtist:
		score += exactTitleArtistBonus
	case title == qSong:
		score += exactTitleBonus
	}
	if qArtist != "" && artist == qArtist {
		score += exactArtistBonus
	}

	names := SplitArtists(qArtist)
	if len(names) > 0 && len(names[0]) > 2 && strings.Contains(artist, names[0]) {
		score += primaryArtistBonus
	}
	for _, name := range featuredNames(q, names) {
		if len(name) > 2 && strings.Contains(artist, name) {
			score += featuredArtistWordBonus
		}
	}

	return score
}

// featuredNames returns the collaborators of a query: everyone credited
// after the primary artist plus any featured artist from the title.
func featuredNames(q Query, names []string) []string {
	var out []string
	if len(names) > 1 {
		out = append(out, names[1:]...)
	}
	for _, name := range SplitArtists(fold(q.Featured)) {
		if len(names) == 0 || name != names[0] {
			out = append(out, name)
		}
	}
	return out
}

// overlapsText reports whether at least min(2, len(names)) names occur in text.
func overlapsText(names []string, text string) bool {
	if len(names) == 0 {
		return false
	}
	matched := 0
	for _, n := range names {
		if strings.Contains(text, n) {
			matched++
		}
	}
	return matched >= min(2, len(names))
}

// BestCandidate returns the highest scoring candidate, preferring the
// earliest on ties. There is no minimum score: ok is false only when
// candidates is empty.
func BestCandidate(candidates []Candidate, q Query) (best Candidate, score int, ok bool) {
	for i, c := range candidates {
		s := Score(c, q)
		if i == 0 || s > score {
			best, score = c, s
		}
	}
	return best, score, len(candidates) > 0
}
