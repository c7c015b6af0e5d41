package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrCityEmpty is returned when the city name is empty or whitespace-only after trim.
var ErrCityEmpty = errors.New("city is required")

// ErrCityTooLong is returned when the city name exceeds the maximum length.
var ErrCityTooLong = errors.New("city name too long")

// ErrCityInvalidChars is returned when the city name contains disallowed characters.
var ErrCityInvalidChars = errors.New("city name contains invalid characters")

// MaxCityNameLength bounds the accepted city name length in runes.
const MaxCityNameLength = 100

// ValidateCityName trims the input, enforces the length bound, and restricts
// to allowed characters: letters (Unicode), digits, space, comma, period,
// apostrophe, hyphen. Returns the trimmed string or an error suitable for
// 400 INVALID_CITY responses. Normalization (lowercase) is left to callers.
func ValidateCityName(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCityEmpty
	}
	if len(r) > MaxCityNameLength {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '.', '\'', '-':
		return true
	}
	return false
}

// NormalizeCity normalizes a city name for storage and cache keys: trimmed
// and lowercased, so "Berlin" and " berlin " refer to the same record.
func NormalizeCity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
