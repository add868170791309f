package domain

import (
	"errors"
	"testing"
)

func TestParseGrade(t *testing.T) {
	tests := []struct {
		token   string
		want    Grade
		wantErr bool
	}{
		{token: "again", want: Again},
		{token: "hard", want: Hard},
		{token: "good", want: Good},
		{token: "easy", want: Easy},
		{token: "Again", wantErr: true},
		{token: "perfect", wantErr: true},
		{token: "", wantErr: true},
	}

	for _, tt := range tests {
		g, err := ParseGrade(tt.token)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("ParseGrade(%q): err = %v, want ErrInvalidArgument", tt.token, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseGrade(%q): %v", tt.token, err)
			continue
		}
		if g != tt.want {
			t.Errorf("ParseGrade(%q) = %v, want %v", tt.token, g, tt.want)
		}
	}
}

func TestGradeQualityOrdering(t *testing.T) {
	// The quality scores drive the scheduling arithmetic and must be the
	// exact ordered mapping again=0 .. easy=3.
	want := map[Grade]int{Again: 0, Hard: 1, Good: 2, Easy: 3}
	for g, q := range want {
		if g.Quality() != q {
			t.Errorf("%s.Quality() = %d, want %d", g, g.Quality(), q)
		}
	}
}

func TestGradeTextRoundTrip(t *testing.T) {
	for _, g := range []Grade{Again, Hard, Good, Easy} {
		text, err := g.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", g, err)
		}
		var back Grade
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if back != g {
			t.Errorf("round trip of %v gave %v", g, back)
		}
	}

	if _, err := Grade(9).MarshalText(); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("MarshalText of invalid grade: err = %v, want ErrInvalidArgument", err)
	}
	var g Grade
	if err := g.UnmarshalText([]byte("meh")); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("UnmarshalText of bad token: err = %v, want ErrInvalidArgument", err)
	}
}

func TestGradeString(t *testing.T) {
	if s := Good.String(); s != "good" {
		t.Errorf("Good.String() = %q, want good", s)
	}
	if s := Grade(9).String(); s != "grade(9)" {
		t.Errorf("Grade(9).String() = %q, want grade(9)", s)
	}
}
