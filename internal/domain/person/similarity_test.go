package person

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func personWith(name string, attrs ...Attribute) Person {
	return Person{
		ID:         uuid.New(),
		Identity:   CoreIdentity{LegalName: name, CreatedAt: t0, UpdatedAt: t0},
		Attributes: SetOf(attrs...),
		Lifecycle:  Active{},
		Version:    1 + int64(len(attrs)),
	}
}

func fact(t AttributeType, v Value) Attribute {
	a := textAttr(t, "", t0)
	a.Value = v
	return a
}

func TestSimilarity_JohnSmithBostonLondon(t *testing.T) {
	boston := personWith("John Smith",
		fact(BirthDateTime, DateTimeValue{At: time.Date(1985, 3, 15, 8, 30, 0, 0, time.UTC)}),
		fact(BirthPlace, TextValue{Text: "Boston"}),
	)
	london := personWith("John Smith",
		fact(BirthDateTime, DateTimeValue{At: time.Date(1985, 3, 15, 13, 45, 0, 0, time.UTC)}),
		fact(BirthPlace, TextValue{Text: "London"}),
	)

	score := Similarity(boston, london, t0)
	assert.Less(t, score, 0.5)
	assert.InDelta(t, 0.30/0.90, score, 1e-9)
}

func TestSimilarity_DifferentSexIsDefinitiveNonMatch(t *testing.T) {
	born := DateTimeValue{At: time.Date(1985, 3, 15, 8, 30, 0, 0, time.UTC)}
	a := personWith("John Smith",
		fact(BirthDateTime, born),
		fact(BirthPlace, TextValue{Text: "Boston"}),
		fact(BiologicalSex, BiologicalSexValue{Sex: SexMale}),
	)
	b := personWith("John Smith",
		fact(BirthDateTime, born),
		fact(BirthPlace, TextValue{Text: "Boston"}),
		fact(BiologicalSex, BiologicalSexValue{Sex: SexFemale}),
	)

	assert.Equal(t, 0.0, Similarity(a, b, t0))
}

func TestSimilarity_WeightsOnlyEvaluatedComparisons(t *testing.T) {
	t.Run("identical facts score one", func(t *testing.T) {
		born := DateTimeValue{At: time.Date(1985, 3, 15, 8, 30, 0, 0, time.UTC)}
		a := personWith("John Smith", fact(BirthDateTime, born), fact(BiologicalSex, BiologicalSexValue{Sex: SexMale}))
		b := personWith("smith, JOHN", fact(BirthDateTime, born), fact(BiologicalSex, BiologicalSexValue{Sex: SexMale}))
		assert.InDelta(t, 1.0, Similarity(a, b, t0), 1e-9)
	})

	t.Run("date-only match uses date weight", func(t *testing.T) {
		a := personWith("Ann Lee", fact(BirthDate, NewDate(1970, time.July, 4)))
		b := personWith("Ann Lee", fact(BirthDateTime, DateTimeValue{At: time.Date(1970, 7, 4, 23, 0, 0, 0, time.UTC)}))
		assert.InDelta(t, 1.0, Similarity(a, b, t0), 1e-9)

		c := personWith("Ann Lee", fact(BirthDate, NewDate(1970, time.July, 5)))
		assert.InDelta(t, 0.30/0.65, Similarity(a, c, t0), 1e-9)
	})

	t.Run("nothing comparable", func(t *testing.T) {
		assert.Equal(t, 0.0, Similarity(Person{}, Person{}, t0))
	})

	t.Run("invalidated facts are ignored", func(t *testing.T) {
		place := fact(BirthPlace, TextValue{Text: "Boston"})
		place.Temporal = place.Temporal.ClosedAt(t0.Add(time.Hour))
		a := personWith("Ann Lee", place)
		b := personWith("Ann Lee", fact(BirthPlace, TextValue{Text: "London"}))
		assert.InDelta(t, 0.30/0.50, Similarity(a, b, t0), 1e-9)
		assert.InDelta(t, 1.0, Similarity(a, b, t0.Add(2*time.Hour)), 1e-9)
	})
}

func TestNameSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, NameSimilarity("José Álvarez", "jose  alvarez"), 1e-9)
	assert.InDelta(t, 1.0, NameSimilarity("Smith John", "John Smith"), 1e-9)
	assert.Greater(t, NameSimilarity("Jon Smith", "John Smith"), 0.8)
	assert.Less(t, NameSimilarity("Alice Wong", "John Smith"), 0.5)
}
