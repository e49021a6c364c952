package usecase

import (
	"errors"
	"strings"
	"testing"

	"github.com/watchfinder/backend/internal/domain"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "clean query passes through",
			input: "omega speedmaster professional",
			want:  "omega speedmaster professional",
		},
		{
			name:  "whitespace collapses",
			input: "  omega   speedmaster\t1861  ",
			want:  "omega speedmaster 1861",
		},
		{
			name:  "markup characters stripped",
			input: `rolex "hulk" <submariner>`,
			want:  "rolex hulk submariner",
		},
		{
			name:  "ampersand stripped",
			input: "patek & co",
			want:  "patek co",
		},
		{
			name:  "control characters stripped",
			input: "seiko\x00skx\x1f007",
			want:  "seiko skx 007",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeQuery(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("normalizeQuery(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeQuery_Invalid(t *testing.T) {
	for _, input := range []string{"", "   ", "<>&\"'", "\x00\x01"} {
		t.Run(input, func(t *testing.T) {
			_, err := normalizeQuery(input)
			if !errors.Is(err, domain.ErrInvalidQuery) {
				t.Errorf("error = %v, want ErrInvalidQuery", err)
			}
		})
	}
}

func TestNormalizeQuery_CapsLength(t *testing.T) {
	input := strings.Repeat("vintage omega seamaster ", 10)

	got, err := normalizeQuery(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) > 100 {
		t.Errorf("len = %d, want <= 100", len(got))
	}
	if strings.HasSuffix(got, " ") {
		t.Errorf("result %q has trailing space", got)
	}
	// The cut lands on a word boundary, not mid-word
	if strings.HasSuffix(got, "seamast") || strings.HasSuffix(got, "om") {
		t.Errorf("result %q cut mid-word", got)
	}
}
