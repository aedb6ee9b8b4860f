package agent

import (
	"strings"
)

// Perturber occasionally corrupts a single word of generated text so AI
// output reads less machine-perfect. Purely cosmetic; reproducible under a
// seeded random source.
type Perturber struct {
	Rate float64

	rng *lockedRand
}

// NewPerturber builds a perturber around a shared random source.
func NewPerturber(rate float64, rng *lockedRand) *Perturber {
	return &Perturber{Rate: rate, rng: rng}
}

// Apply returns the text with, at Rate probability, one word corrupted.
func (t *Perturber) Apply(text string) string {
	if t.rng.Float64() >= t.Rate {
		return text
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}

	idx := t.rng.Intn(len(words))
	words[idx] = t.corrupt(words[idx])

	return strings.Join(words, " ")
}

func (t *Perturber) corrupt(word string) string {
	runes := []rune(word)
	if len(runes) <= 3 {
		return word
	}

	switch t.rng.Intn(3) {
	case 0: // drop the last character
		return string(runes[:len(runes)-1])
	case 1: // duplicate an interior character
		pos := 1 + t.rng.Intn(len(runes)-1)
		doubled := make([]rune, 0, len(runes)+1)
		doubled = append(doubled, runes[:pos]...)
		doubled = append(doubled, runes[pos])
		doubled = append(doubled, runes[pos:]...)
		return string(doubled)
	default: // swap two adjacent interior characters
		if len(runes) <= 4 {
			return word
		}
		pos := 1 + t.rng.Intn(len(runes)-3)
		runes[pos], runes[pos+1] = runes[pos+1], runes[pos]
		return string(runes)
	}
}
