package assemble

import (
	"cmp"
	"slices"

	"github.com/Aman-CERP/notemesh/internal/tokenize"
)

const (
	// DefaultMaxTokens is the default bundle budget.
	DefaultMaxTokens = 100000

	// minTrimTokens is the smallest remaining budget worth trimming into.
	minTrimTokens = 100

	// charsPerToken converts a token budget into a character cut.
	charsPerToken = 4

	// OmittedMarker ends trimmed content.
	OmittedMarker = "\n\n... (content omitted)"
)

// DefaultPriorities ranks the sections, highest first.
func DefaultPriorities() map[Section]float64 {
	return map[Section]float64{
		SectionPrimary:      1.0,
		SectionBacklinks:    0.8,
		SectionForwardLinks: 0.7,
		SectionSemantic:     0.6,
		SectionTagRelated:   0.5,
	}
}

// Packer fits a bundle into a token budget.
type Packer struct {
	MaxTokens  int
	Counter    tokenize.Counter
	Priorities map[Section]float64
}

// NewPacker creates a packer with the default priorities. A nil counter
// uses the character estimate.
func NewPacker(maxTokens int, counter tokenize.Counter) *Packer {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if counter == nil {
		counter = tokenize.EstimateCounter{}
	}
	return &Packer{MaxTokens: maxTokens, Counter: counter, Priorities: DefaultPriorities()}
}

// Pack walks sections from highest priority down and keeps each note that
// fits in the remaining budget. A note that does not fit is trimmed when
// more than minTrimTokens remain, otherwise dropped. The input is not
// modified.
func (p *Packer) Pack(in *Bundle) *Bundle {
	out := newBundle(in.Focus)
	out.MaxTokens = p.MaxTokens
	remaining := p.MaxTokens

	for _, section := range p.order() {
		for _, n := range in.Sections[section] {
			cost := n.Tokens
			if cost == 0 {
				cost = p.Counter.Count(n.Content)
			}

			if cost <= remaining {
				n.Tokens = cost
				out.Sections[section] = append(out.Sections[section], n)
				remaining -= cost
				continue
			}
			if remaining > minTrimTokens {
				if t, ok := trim(n, remaining); ok {
					out.Sections[section] = append(out.Sections[section], t)
					remaining -= t.Tokens
				}
			}
		}
	}

	out.TokensUsed = p.MaxTokens - remaining
	return out
}

// order returns sections by descending priority. Sections without a
// priority are skipped.
func (p *Packer) order() []Section {
	sections := make([]Section, 0, len(p.Priorities))
	for _, s := range AllSections {
		if _, ok := p.Priorities[s]; ok {
			sections = append(sections, s)
		}
	}
	slices.SortStableFunc(sections, func(a, b Section) int {
		return cmp.Compare(p.Priorities[b], p.Priorities[a])
	})
	return sections
}

// trim cuts n to budget tokens. Its cost is charged as the whole budget.
func trim(n Note, budget int) (Note, bool) {
	if n.Content == "" {
		return Note{}, false
	}
	n.Tokens = budget

	runes := []rune(n.Content)
	maxChars := budget * charsPerToken
	if len(runes) <= maxChars {
		return n, true
	}
	n.Content = string(runes[:maxChars]) + OmittedMarker
	n.Trimmed = true
	return n, true
}
