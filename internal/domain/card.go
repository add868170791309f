package domain

// Card is a single question-answer-context entry parsed from a deck file.
// Hash is the content hash computed by the deck package and doubles as the
// card's stable identifier everywhere else in the system.
type Card struct {
	Question string
	Answer   string
	Context  string
	Tags     []string
	Hash     string
}

// HasTag reports whether the card carries the given tag.
func (c Card) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
