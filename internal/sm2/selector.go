package sm2

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/recallkit/recallkit/internal/domain"
)

// Filter is a pure predicate over card content. A nil Filter admits every
// card.
type Filter func(domain.Card) bool

// ParseFilter compiles a wire-form filter expression into a predicate.
// The empty string means no filter. The only recognized form is
// "tag=<name>", which admits cards carrying that tag. Anything else
// returns ErrInvalidArgument.
func ParseFilter(expr string) (Filter, error) {
	if expr == "" {
		return nil, nil
	}
	name, ok := strings.CutPrefix(expr, "tag=")
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: malformed filter %q", domain.ErrInvalidArgument, expr)
	}
	return func(c domain.Card) bool { return c.HasTag(name) }, nil
}

// SelectDue returns the states due at now, most-overdue first.
//
// A state is due when DueAt <= now. Results are ordered ascending by DueAt
// with ties broken by ascending card hash, so repeated calls over unchanged
// data return the identical sequence. When filter is non-nil it is applied
// to the state's card looked up in cards; states whose card is absent from
// the map are excluded. limit caps the result; 0 means unbounded and a
// negative limit returns ErrInvalidArgument.
//
// The input slice is never mutated and the result is freshly allocated.
func SelectDue(states []domain.MemoryState, cards map[string]domain.Card, now time.Time, filter Filter, limit int) ([]domain.MemoryState, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit %d must be positive", domain.ErrInvalidArgument, limit)
	}

	due := make([]domain.MemoryState, 0, len(states))
	for _, st := range states {
		if st.DueAt.After(now) {
			continue
		}
		if filter != nil {
			card, ok := cards[st.CardHash]
			if !ok || !filter(card) {
				continue
			}
		}
		due = append(due, st)
	}

	sort.Slice(due, func(i, j int) bool {
		if !due[i].DueAt.Equal(due[j].DueAt) {
			return due[i].DueAt.Before(due[j].DueAt)
		}
		return due[i].CardHash < due[j].CardHash
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}
