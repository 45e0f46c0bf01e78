package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// MaxCityNameLength bounds a city name in runes.
const MaxCityNameLength = 100

// ErrCityInvalid is wrapped by every error ValidateCityName returns.
var ErrCityInvalid = errors.New("invalid city name")

// ErrCityEmpty is returned when the name is empty or whitespace-only after trim.
var ErrCityEmpty = fmt.Errorf("%w: empty", ErrCityInvalid)

// ErrCityTooLong is returned when the name exceeds MaxCityNameLength.
var ErrCityTooLong = fmt.Errorf("%w: too long", ErrCityInvalid)

// ErrCityInvalidChars is returned when the name contains disallowed characters.
var ErrCityInvalidChars = fmt.Errorf("%w: contains invalid characters", ErrCityInvalid)

// ValidateCityName trims the input and checks it is usable as the q parameter
// of a weather query: non-empty, at most MaxCityNameLength runes, and made of
// letters (Unicode), digits, space, comma, hyphen, apostrophe or period.
// City datasets use names like "port-aux-francais" and "st. john's".
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
	case ' ', ',', '-', '\'', '.':
		return true
	}
	return false
}
