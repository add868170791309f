// Package sm2 implements the review scheduling core: a pure SM-2 variant
// that computes a card's next memory state from a grade, and the due-set
// selector that orders eligible states for a session.
package sm2

import (
	"fmt"
	"math"
	"time"

	"github.com/recallkit/recallkit/internal/domain"
)

// Params holds the tunable constants of the scheduler.
type Params struct {
	// EaseFloor is the hard lower bound on the ease factor.
	EaseFloor float64
	// EasyBonus multiplies the interval when a card is graded easy.
	EasyBonus float64
	// FirstInterval and SecondInterval form the learning-phase ladder:
	// the intervals granted on the first and second consecutive
	// successful reviews.
	FirstInterval  int
	SecondInterval int
}

// DefaultParams returns the classic SM-2 constants.
func DefaultParams() Params {
	return Params{
		EaseFloor:      domain.MinEaseFactor,
		EasyBonus:      1.3,
		FirstInterval:  1,
		SecondInterval: 6,
	}
}

// ApplyReview computes the next memory state for a graded review at the
// given time. It is a pure function: the input state is never mutated, no
// I/O happens, and identical inputs always produce identical outputs, so it
// is safe to call from any number of goroutines.
//
// Interval arithmetic rounds half away from zero (math.Round). A grade
// below good resets the repetition count; note that this treats hard the
// same as again, matching the original product behavior.
func (p Params) ApplyReview(state domain.MemoryState, grade domain.Grade, reviewedAt time.Time) (domain.MemoryState, error) {
	if !grade.IsValid() {
		return domain.MemoryState{}, fmt.Errorf("%w: grade %d", domain.ErrInvalidArgument, int(grade))
	}
	if state.EaseFactor < p.EaseFloor {
		return domain.MemoryState{}, fmt.Errorf("%w: ease factor %.3f below floor %.1f",
			domain.ErrInvalidArgument, state.EaseFactor, p.EaseFloor)
	}
	if state.IntervalDays < 0 {
		return domain.MemoryState{}, fmt.Errorf("%w: negative interval %d",
			domain.ErrInvalidArgument, state.IntervalDays)
	}

	q := grade.Quality()
	next := state

	if q < 2 {
		next.Repetitions = 0
		next.IntervalDays = p.FirstInterval
	} else {
		next.Repetitions = state.Repetitions + 1
		switch next.Repetitions {
		case 1:
			next.IntervalDays = p.FirstInterval
		case 2:
			next.IntervalDays = p.SecondInterval
		default:
			grown := int(math.Round(float64(state.IntervalDays) * state.EaseFactor))
			if grown < 1 {
				grown = 1
			}
			next.IntervalDays = grown
		}
	}

	// The ease factor moves on every grade, failures included.
	delta := 0.1 - float64(3-q)*(0.08+float64(3-q)*0.02)
	next.EaseFactor = math.Max(p.EaseFloor, state.EaseFactor+delta)

	if grade == domain.Easy {
		next.IntervalDays = int(math.Round(float64(next.IntervalDays) * p.EasyBonus))
	}

	next.DueAt = addDays(reviewedAt, next.IntervalDays)
	at := reviewedAt
	next.LastReviewedAt = &at

	return next, nil
}

// addDays advances t by n calendar days in UTC, preserving the time of day.
func addDays(t time.Time, n int) time.Time {
	return t.UTC().AddDate(0, 0, n)
}
