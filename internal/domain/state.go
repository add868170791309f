package domain

import "time"

// Scheduling seed values for a freshly enrolled card.
const (
	SeedEaseFactor = 2.5
	MinEaseFactor  = 1.3
)

// MemoryState is the scheduling record for one (learner, card) pair.
//
// Invariants maintained by the scheduler:
//   - EaseFactor never drops below MinEaseFactor.
//   - IntervalDays is at least 1 after any review; only the un-reviewed
//     seed state may hold 0.
//   - Repetitions resets to 0 whenever a grade below good is recorded.
//   - DueAt is LastReviewedAt advanced by IntervalDays calendar days in UTC.
type MemoryState struct {
	ID             int64
	LearnerID      string
	CardHash       string
	DueAt          time.Time
	IntervalDays   int
	EaseFactor     float64
	Repetitions    int
	LastReviewedAt *time.Time // nil before the first review

	// Version is the optimistic-concurrency token owned by storage. It is
	// opaque to the scheduler and carried through unchanged.
	Version int64
}

// NewMemoryState returns the seed state for a learner enrolling on a card.
// The card is due immediately.
func NewMemoryState(learnerID, cardHash string, now time.Time) MemoryState {
	return MemoryState{
		LearnerID:    learnerID,
		CardHash:     cardHash,
		DueAt:        now.UTC(),
		IntervalDays: 0,
		EaseFactor:   SeedEaseFactor,
		Repetitions:  0,
	}
}

// ReviewLog records a single graded review of a card.
type ReviewLog struct {
	ID           int64
	StateID      int64
	LearnerID    string
	CardHash     string
	Grade        Grade
	IntervalDays int
	EaseFactor   float64
	ReviewedAt   time.Time
}
