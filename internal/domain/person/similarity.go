package person

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Disambiguation weights
const (
	weightName          = 0.30
	weightBirthDateTime = 0.40
	weightBirthDate     = 0.35
	weightBirthPlace    = 0.20
	weightBiologicalSex = 0.05
)

// Similarity scores in [0,1] how likely a and b describe the same person,
// using the facts each holds at instant at. Comparisons that cannot be made
// because a fact is missing on either side are left out of the score.
// Differing biological sex is a definitive non-match and scores 0.
func Similarity(a, b Person, at time.Time) float64 {
	fa, fb := identifyingFacts(a, at), identifyingFacts(b, at)

	if fa.sex != "" && fb.sex != "" && fa.sex != fb.sex {
		return 0
	}

	var score, evaluated float64
	add := func(weight, match float64) {
		score += weight * match
		evaluated += weight
	}

	if fa.name != "" && fb.name != "" {
		add(weightName, NameSimilarity(fa.name, fb.name))
	}

	switch {
	case fa.birthInstant != nil && fb.birthInstant != nil:
		add(weightBirthDateTime, boolScore(fa.birthInstant.Equal(*fb.birthInstant)))
	case fa.birthDate != nil && fb.birthDate != nil:
		add(weightBirthDate, boolScore(*fa.birthDate == *fb.birthDate))
	}

	if fa.birthPlace != "" && fb.birthPlace != "" {
		add(weightBirthPlace, boolScore(fa.birthPlace == fb.birthPlace))
	}

	if fa.sex != "" && fb.sex != "" {
		add(weightBiologicalSex, 1)
	}

	if evaluated == 0 {
		return 0
	}
	return score / evaluated
}

type facts struct {
	name         string
	birthInstant *time.Time
	birthDate    *DateValue
	birthPlace   string
	sex          Sex
}

func identifyingFacts(p Person, at time.Time) facts {
	current := p.Attributes.ValidAt(at)
	f := facts{name: FoldName(p.Identity.LegalName)}

	if a, ok := current.FindByType(BirthDateTime); ok {
		if v, ok := a.Value.(DateTimeValue); ok {
			t := v.At
			f.birthInstant = &t
			d := DateOf(t)
			f.birthDate = &d
		}
	}
	if a, ok := current.FindByType(BirthDate); ok {
		if v, ok := a.Value.(DateValue); ok && v.Precision == PrecisionDay {
			f.birthDate = &v
		}
	}
	if f.birthDate == nil && p.Identity.BirthDate != nil {
		d := DateOf(*p.Identity.BirthDate)
		f.birthDate = &d
	}
	if a, ok := current.FindByType(BirthPlace); ok && a.Value != nil {
		f.birthPlace = FoldName(a.Value.String())
	}
	if a, ok := current.FindByType(BiologicalSex); ok {
		if v, ok := a.Value.(BiologicalSexValue); ok {
			f.sex = v.Sex
		}
	}
	return f
}

func boolScore(match bool) float64 {
	if match {
		return 1
	}
	return 0
}

// FoldName lowercases, strips diacritics and collapses whitespace so that
// "José  Álvarez" and "jose alvarez" compare equal.
func FoldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC, cases.Fold())
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = strings.ToLower(s)
	}
	return strings.Join(strings.FieldsFunc(folded, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}), " ")
}

// NameSimilarity is the normalized edit-distance similarity of two names
// after folding and sorting their tokens, so word order does not matter.
func NameSimilarity(a, b string) float64 {
	x, y := sortedTokens(FoldName(a)), sortedTokens(FoldName(b))
	if x == "" && y == "" {
		return 1
	}
	rx, ry := []rune(x), []rune(y)
	longest := len(rx)
	if len(ry) > longest {
		longest = len(ry)
	}
	return 1 - float64(levenshtein(rx, ry))/float64(longest)
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
