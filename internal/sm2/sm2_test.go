package sm2

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/recallkit/recallkit/internal/domain"
)

func seedState() domain.MemoryState {
	return domain.NewMemoryState("learner-1", "card-1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestApplyReviewFirstGood(t *testing.T) {
	p := DefaultParams()
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	next, err := p.ApplyReview(seedState(), domain.Good, at)
	if err != nil {
		t.Fatalf("ApplyReview: %v", err)
	}

	if next.Repetitions != 1 {
		t.Errorf("Repetitions = %d, want 1", next.Repetitions)
	}
	if next.IntervalDays != 1 {
		t.Errorf("IntervalDays = %d, want 1", next.IntervalDays)
	}
	wantDue := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	if !next.DueAt.Equal(wantDue) {
		t.Errorf("DueAt = %v, want %v", next.DueAt, wantDue)
	}
	// delta for good is 0.1 - 1*(0.08 + 1*0.02) = 0, so ease is unchanged.
	if !approxEqual(next.EaseFactor, 2.5) {
		t.Errorf("EaseFactor = %v, want 2.5", next.EaseFactor)
	}
	if next.LastReviewedAt == nil || !next.LastReviewedAt.Equal(at) {
		t.Errorf("LastReviewedAt = %v, want %v", next.LastReviewedAt, at)
	}
}

func TestApplyReviewFirstAgain(t *testing.T) {
	p := DefaultParams()
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	next, err := p.ApplyReview(seedState(), domain.Again, at)
	if err != nil {
		t.Fatalf("ApplyReview: %v", err)
	}

	if next.Repetitions != 0 {
		t.Errorf("Repetitions = %d, want 0", next.Repetitions)
	}
	if next.IntervalDays != 1 {
		t.Errorf("IntervalDays = %d, want 1", next.IntervalDays)
	}
	// delta for again is 0.1 - 3*(0.08 + 3*0.02) = -0.32.
	if !approxEqual(next.EaseFactor, 2.18) {
		t.Errorf("EaseFactor = %v, want 2.18", next.EaseFactor)
	}
}

func TestApplyReviewEasyBonus(t *testing.T) {
	p := DefaultParams()
	state := seedState()
	state.IntervalDays = 6
	state.Repetitions = 2
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	next, err := p.ApplyReview(state, domain.Easy, at)
	if err != nil {
		t.Fatalf("ApplyReview: %v", err)
	}

	// Base interval round(6 * 2.5) = 15, easy bonus round(15 * 1.3) = 20.
	if next.IntervalDays != 20 {
		t.Errorf("IntervalDays = %d, want 20", next.IntervalDays)
	}
	wantDue := time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC)
	if !next.DueAt.Equal(wantDue) {
		t.Errorf("DueAt = %v, want %v", next.DueAt, wantDue)
	}
	if next.Repetitions != 3 {
		t.Errorf("Repetitions = %d, want 3", next.Repetitions)
	}
	if !approxEqual(next.EaseFactor, 2.6) {
		t.Errorf("EaseFactor = %v, want 2.6", next.EaseFactor)
	}
}

func TestApplyReviewHardResetsRepetitions(t *testing.T) {
	p := DefaultParams()
	state := seedState()
	state.IntervalDays = 15
	state.Repetitions = 4

	next, err := p.ApplyReview(state, domain.Hard, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ApplyReview: %v", err)
	}

	if next.Repetitions != 0 {
		t.Errorf("Repetitions = %d, want 0", next.Repetitions)
	}
	if next.IntervalDays != 1 {
		t.Errorf("IntervalDays = %d, want 1", next.IntervalDays)
	}
	// delta for hard is 0.1 - 2*(0.08 + 2*0.02) = -0.14.
	if !approxEqual(next.EaseFactor, 2.36) {
		t.Errorf("EaseFactor = %v, want 2.36", next.EaseFactor)
	}
}

func TestLearningLadder(t *testing.T) {
	// Two consecutive goods from a fresh state must yield intervals 1 then
	// 6 regardless of the starting ease factor.
	for _, ease := range []float64{1.3, 2.0, 2.5, 3.1} {
		p := DefaultParams()
		state := seedState()
		state.EaseFactor = ease
		at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

		first, err := p.ApplyReview(state, domain.Good, at)
		if err != nil {
			t.Fatalf("ease %v first review: %v", ease, err)
		}
		second, err := p.ApplyReview(first, domain.Good, first.DueAt)
		if err != nil {
			t.Fatalf("ease %v second review: %v", ease, err)
		}

		if first.IntervalDays != 1 || second.IntervalDays != 6 {
			t.Errorf("ease %v: ladder = [%d, %d], want [1, 6]",
				ease, first.IntervalDays, second.IntervalDays)
		}
	}
}

func TestEaseFloorHolds(t *testing.T) {
	// Pound a card with failures: the ease factor must never cross the
	// floor, and every resulting state must be valid input for the next
	// review.
	p := DefaultParams()
	state := seedState()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	grades := []domain.Grade{
		domain.Again, domain.Again, domain.Hard, domain.Again, domain.Hard,
		domain.Again, domain.Good, domain.Again, domain.Again, domain.Hard,
	}
	for i, g := range grades {
		next, err := p.ApplyReview(state, g, at)
		if err != nil {
			t.Fatalf("review %d (%s): %v", i, g, err)
		}
		if next.EaseFactor < 1.3 {
			t.Fatalf("review %d (%s): EaseFactor %v below floor", i, g, next.EaseFactor)
		}
		state = next
		at = next.DueAt
	}
}

func TestEasyBeatsGood(t *testing.T) {
	// Once ease-driven growth applies, easy must always produce a strictly
	// longer interval than good from the same starting state.
	p := DefaultParams()
	state := seedState()
	state.IntervalDays = 10
	state.Repetitions = 2
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	good, err := p.ApplyReview(state, domain.Good, at)
	if err != nil {
		t.Fatalf("good: %v", err)
	}
	easy, err := p.ApplyReview(state, domain.Easy, at)
	if err != nil {
		t.Fatalf("easy: %v", err)
	}

	if easy.IntervalDays <= good.IntervalDays {
		t.Errorf("easy interval %d not greater than good interval %d",
			easy.IntervalDays, good.IntervalDays)
	}
}

func TestDueDatePreservesTimeOfDay(t *testing.T) {
	p := DefaultParams()
	state := seedState()
	state.IntervalDays = 6
	state.Repetitions = 2

	for _, at := range []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC),
		time.Date(2024, 2, 28, 12, 30, 0, 0, time.UTC), // leap-year rollover
	} {
		next, err := p.ApplyReview(state, domain.Good, at)
		if err != nil {
			t.Fatalf("at %v: %v", at, err)
		}
		want := at.AddDate(0, 0, next.IntervalDays)
		if !next.DueAt.Equal(want) {
			t.Errorf("at %v: DueAt = %v, want %v", at, next.DueAt, want)
		}
	}
}

func TestApplyReviewDoesNotMutateInput(t *testing.T) {
	p := DefaultParams()
	state := seedState()
	state.IntervalDays = 6
	state.Repetitions = 2
	before := state

	if _, err := p.ApplyReview(state, domain.Easy, time.Now()); err != nil {
		t.Fatalf("ApplyReview: %v", err)
	}
	if state != before {
		t.Errorf("input state mutated: %+v != %+v", state, before)
	}
}

func TestApplyReviewRejectsBadInput(t *testing.T) {
	p := DefaultParams()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("invalid grade", func(t *testing.T) {
		_, err := p.ApplyReview(seedState(), domain.Grade(7), at)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("err = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("ease below floor", func(t *testing.T) {
		state := seedState()
		state.EaseFactor = 1.1
		_, err := p.ApplyReview(state, domain.Good, at)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("err = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("negative interval", func(t *testing.T) {
		state := seedState()
		state.IntervalDays = -1
		_, err := p.ApplyReview(state, domain.Good, at)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("err = %v, want ErrInvalidArgument", err)
		}
	})
}

func TestIntervalGrowthFloorsAtOne(t *testing.T) {
	// A corrupt-but-legal zero interval in the reviewing regime must still
	// produce at least a one-day interval.
	p := DefaultParams()
	state := seedState()
	state.IntervalDays = 0
	state.Repetitions = 5
	state.EaseFactor = 1.3

	next, err := p.ApplyReview(state, domain.Good, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ApplyReview: %v", err)
	}
	if next.IntervalDays < 1 {
		t.Errorf("IntervalDays = %d, want >= 1", next.IntervalDays)
	}
}
