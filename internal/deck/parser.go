// Package deck parses markdown deck files into cards and derives their
// stable content identifiers.
//
// A deck file holds cards separated by "---" lines. Each card is built from
// prefixed lines, where a field runs until the next prefix or separator:
//
//	Q: 7 x 8
//	A: 56
//	C: seven eights
//	T: tables-to-9, tables
package deck

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/recallkit/recallkit/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"
	tagsPrefix     = "T:"
	separator      = "---"
)

// ParseFile reads a deck file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads deck content from r and extracts all cards. Cards without a
// question are dropped. Hashes are not filled in; see Hash.
func Parse(r io.Reader) ([]domain.Card, error) {
	scanner := bufio.NewScanner(r)

	var cards []domain.Card
	var current builder

	for scanner.Scan() {
		line := scanner.Text()

		if strings.TrimSpace(line) == separator {
			cards = current.flush(cards)
			continue
		}

		switch {
		case strings.HasPrefix(line, questionPrefix):
			// A new question starts a new card even without a separator.
			if current.field == fieldQuestion || current.card.Question != "" {
				cards = current.flush(cards)
			}
			current.open(fieldQuestion, strings.TrimPrefix(line, questionPrefix))
		case strings.HasPrefix(line, answerPrefix):
			current.open(fieldAnswer, strings.TrimPrefix(line, answerPrefix))
		case strings.HasPrefix(line, contextPrefix):
			current.open(fieldContext, strings.TrimPrefix(line, contextPrefix))
		case strings.HasPrefix(line, tagsPrefix):
			current.open(fieldTags, strings.TrimPrefix(line, tagsPrefix))
		default:
			current.continueLine(line)
		}
	}
	cards = current.flush(cards)

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}

type field int

const (
	fieldNone field = iota
	fieldQuestion
	fieldAnswer
	fieldContext
	fieldTags
)

// builder accumulates one card's fields line by line.
type builder struct {
	card  domain.Card
	field field
	block []string
}

// open closes the block in progress and starts collecting a new field.
func (b *builder) open(f field, firstLine string) {
	b.closeBlock()
	b.field = f
	b.block = append(b.block, strings.TrimPrefix(firstLine, " "))
}

// continueLine extends the field in progress; lines outside any field are
// ignored.
func (b *builder) continueLine(line string) {
	if b.field == fieldNone {
		return
	}
	b.block = append(b.block, line)
}

func (b *builder) closeBlock() {
	if len(b.block) == 0 {
		return
	}
	content := strings.Join(b.block, "\n")
	switch b.field {
	case fieldQuestion:
		b.card.Question = content
	case fieldAnswer:
		b.card.Answer = content
	case fieldContext:
		b.card.Context = content
	case fieldTags:
		b.card.Tags = parseTags(content)
	}
	b.block = nil
	b.field = fieldNone
}

// flush finalizes the card in progress and appends it to cards if it has a
// question.
func (b *builder) flush(cards []domain.Card) []domain.Card {
	b.closeBlock()
	if b.card.Question != "" {
		cards = append(cards, b.card)
	}
	b.card = domain.Card{}
	return cards
}

// parseTags splits a comma-separated tag list, trimming whitespace and
// dropping empties.
func parseTags(s string) []string {
	var tags []string
	for _, part := range strings.Split(s, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
