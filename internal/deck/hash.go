package deck

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/recallkit/recallkit/internal/domain"
)

// Normalize concatenates the card's identity fields after cleaning each
// part: trimmed, lowercased, line endings normalized. Tags are deliberately
// excluded so retagging a card keeps its scheduling history.
func Normalize(card domain.Card) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	q := normalizePart(card.Question)
	a := normalizePart(card.Answer)
	c := normalizePart(card.Context)

	// Joined with a newline so adjacent fields can never run together and
	// collide with a differently-split card.
	return strings.Join([]string{q, a, c}, "\n")
}

// Hash returns the card's stable identifier: the SHA-256 of its normalized
// content as a hex string.
func Hash(card domain.Card) string {
	normalized := Normalize(card)
	hashBytes := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hashBytes)
}
