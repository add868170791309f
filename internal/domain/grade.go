package domain

import (
	"encoding"
	"fmt"
)

// Grade is the learner's assessment of recall quality, ordered
// again < hard < good < easy. Its integer value is the SM-2 quality score.
type Grade int

const (
	Again Grade = iota // complete failure to recall
	Hard               // recalled with significant difficulty
	Good               // recalled with some effort
	Easy               // recalled effortlessly
)

var gradeNames = [...]string{Again: "again", Hard: "hard", Good: "good", Easy: "easy"}

var gradeByName = map[string]Grade{
	"again": Again,
	"hard":  Hard,
	"good":  Good,
	"easy":  Easy,
}

var (
	_ fmt.Stringer             = Grade(0)
	_ encoding.TextMarshaler   = Grade(0)
	_ encoding.TextUnmarshaler = (*Grade)(nil)
)

// ParseGrade maps one of the four wire tokens ("again", "hard", "good",
// "easy") to a Grade. Any other value returns ErrInvalidArgument.
func ParseGrade(s string) (Grade, error) {
	g, ok := gradeByName[s]
	if !ok {
		return 0, fmt.Errorf("%w: unknown grade %q", ErrInvalidArgument, s)
	}
	return g, nil
}

// IsValid reports whether g is one of the four recognized grades.
func (g Grade) IsValid() bool {
	return g >= Again && g <= Easy
}

// Quality returns the SM-2 quality score (again=0 .. easy=3).
func (g Grade) Quality() int {
	return int(g)
}

// String returns the wire token for the grade, or "grade(n)" for invalid
// values.
func (g Grade) String() string {
	if g.IsValid() {
		return gradeNames[g]
	}
	return fmt.Sprintf("grade(%d)", int(g))
}

// MarshalText implements encoding.TextMarshaler.
func (g Grade) MarshalText() ([]byte, error) {
	if !g.IsValid() {
		return nil, fmt.Errorf("%w: grade %d", ErrInvalidArgument, int(g))
	}
	return []byte(gradeNames[g]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Grade) UnmarshalText(text []byte) error {
	v, err := ParseGrade(string(text))
	if err != nil {
		return err
	}
	*g = v
	return nil
}
