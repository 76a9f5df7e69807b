package readmodel

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/persona/backend/internal/domain/person"
)

// SearchDocument is the denormalised search view of a person. Fields holds
// the latest value of every attribute type, keyed by "category.kind".
type SearchDocument struct {
	ID        uuid.UUID             `json:"id"`
	LegalName string                `json:"legal_name"`
	State     person.LifecycleState `json:"state"`
	Fields    map[string]string     `json:"fields"`
	Text      string                `json:"text"`
	Tokens    []string              `json:"tokens"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// ProjectSearch maintains SearchDocument
func ProjectSearch(current *SearchDocument, e person.Event) *SearchDocument {
	if created, ok := e.(*person.PersonCreatedEvent); ok {
		doc := &SearchDocument{
			ID:        created.AggregateID(),
			LegalName: created.LegalName,
			State:     person.StateActive,
			Fields:    map[string]string{},
			UpdatedAt: created.OccurredAt(),
		}
		doc.reindex()
		return doc
	}
	if current == nil {
		return nil
	}

	next := *current
	next.Fields = make(map[string]string, len(current.Fields)+1)
	for k, v := range current.Fields {
		next.Fields[k] = v
	}

	switch ev := e.(type) {
	case *person.NameUpdatedEvent:
		next.LegalName = ev.LegalName
	case *person.AttributeRecordedEvent:
		next.Fields[ev.Attribute.Type.String()] = ev.Attribute.Value.String()
	case *person.AttributeUpdatedEvent:
		next.Fields[ev.Attribute.Type.String()] = ev.Attribute.Value.String()
	case *person.AttributeInvalidatedEvent:
		delete(next.Fields, ev.AttributeType.String())
	case *person.PersonDeactivatedEvent:
		next.State = person.StateDeactivated
	case *person.PersonReactivatedEvent:
		next.State = person.StateActive
	case *person.PersonDeceasedEvent:
		next.State = person.StateDeceased
	case *person.PersonMergedIntoEvent:
		next.State = person.StateMergedInto
	default:
		return current
	}
	next.UpdatedAt = e.OccurredAt()
	next.reindex()
	return &next
}

func (d *SearchDocument) reindex() {
	keys := make([]string, 0, len(d.Fields))
	for k := range d.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := []string{d.LegalName}
	for _, k := range keys {
		parts = append(parts, d.Fields[k])
	}
	d.Text = strings.Join(parts, " ")
	d.Tokens = tokenize(d.Text)
}

func tokenize(s string) []string {
	seen := map[string]bool{}
	var tokens []string
	for _, tok := range strings.Fields(person.FoldName(s)) {
		if !seen[tok] {
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}
	sort.Strings(tokens)
	return tokens
}

// Relevance scores how well the document matches free text, in [0,1].
// A query token matching a document token scores 1, a prefix match 0.5.
// An empty query matches everything with relevance 1.
func (d SearchDocument) Relevance(query string) float64 {
	terms := tokenize(query)
	if len(terms) == 0 {
		return 1
	}
	var total float64
	for _, term := range terms {
		best := 0.0
		for _, tok := range d.Tokens {
			if tok == term {
				best = 1
				break
			}
			if strings.HasPrefix(tok, term) {
				best = 0.5
			}
		}
		total += best
	}
	return total / float64(len(terms))
}

// Matches reports whether every filter holds. The "state" key matches the
// lifecycle state; any other key is an attribute type compared case- and
// accent-insensitively with the current value.
func (d SearchDocument) Matches(filters map[string]string) bool {
	for key, want := range filters {
		if key == "state" {
			if !strings.EqualFold(string(d.State), want) {
				return false
			}
			continue
		}
		if person.FoldName(d.Fields[key]) != person.FoldName(want) {
			return false
		}
	}
	return true
}
