package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateCityName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "plain name", input: "Berlin", want: "Berlin"},
		{name: "trims whitespace", input: "  Berlin  ", want: "Berlin"},
		{name: "comma and space", input: "Rio de Janeiro, BR", want: "Rio de Janeiro, BR"},
		{name: "apostrophe", input: "N'Djamena", want: "N'Djamena"},
		{name: "hyphen", input: "Saint-Denis", want: "Saint-Denis"},
		{name: "unicode letters", input: "Zürich", want: "Zürich"},
		{name: "empty", input: "", wantErr: ErrCityEmpty},
		{name: "whitespace only", input: "   ", wantErr: ErrCityEmpty},
		{name: "too long", input: strings.Repeat("a", 101), wantErr: ErrCityTooLong},
		{name: "max length ok", input: strings.Repeat("a", 100), want: strings.Repeat("a", 100)},
		{name: "angle brackets", input: "<script>", wantErr: ErrCityInvalidChars},
		{name: "semicolon", input: "Berlin; DROP", wantErr: ErrCityInvalidChars},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateCityName(tc.input)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("ValidateCityName(%q) error = %v, want %v", tc.input, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateCityName(%q) error = %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("ValidateCityName(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNormalizeCity(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Berlin", "berlin"},
		{" Berlin ", "berlin"},
		{"NEW YORK", "new york"},
		{"berlin", "berlin"},
	}
	for _, tc := range tests {
		if got := NormalizeCity(tc.input); got != tc.want {
			t.Errorf("NormalizeCity(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
