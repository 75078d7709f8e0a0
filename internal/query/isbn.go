package query

import (
	"errors"
	"strings"
)

// ErrInvalidISBN is returned when a code fails the ISBN-10/ISBN-13 checksum.
var ErrInvalidISBN = errors.New("invalid ISBN")

// CleanISBN strips separators and whitespace and upper-cases a trailing x.
func CleanISBN(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range code {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'x' || r == 'X':
			b.WriteRune('X')
		}
	}
	return b.String()
}

// NormalizeISBN validates code and returns it in ISBN-13 form.
func NormalizeISBN(code string) (string, error) {
	cleaned := CleanISBN(code)
	switch len(cleaned) {
	case 13:
		if !validISBN13(cleaned) {
			return "", ErrInvalidISBN
		}
		return cleaned, nil
	case 10:
		if !validISBN10(cleaned) {
			return "", ErrInvalidISBN
		}
		return isbn10To13(cleaned), nil
	default:
		return "", ErrInvalidISBN
	}
}

// ToISBN10 converts a 978-prefixed ISBN-13 back to ISBN-10. Some providers
// still index older editions only by the ten digit form.
func ToISBN10(isbn13 string) (string, bool) {
	if len(isbn13) != 13 || !strings.HasPrefix(isbn13, "978") || !validISBN13(isbn13) {
		return "", false
	}
	body := isbn13[3:12]
	sum := 0
	for i, r := range body {
		sum += (10 - i) * int(r-'0')
	}
	check := (11 - sum%11) % 11
	if check == 10 {
		return body + "X", true
	}
	return body + string(rune('0'+check)), true
}

func validISBN10(s string) bool {
	sum := 0
	for i, r := range s {
		var d int
		switch {
		case r >= '0' && r <= '9':
			d = int(r - '0')
		case r == 'X' && i == 9:
			d = 10
		default:
			return false
		}
		sum += (10 - i) * d
	}
	return sum%11 == 0
}

func validISBN13(s string) bool {
	if !strings.HasPrefix(s, "978") && !strings.HasPrefix(s, "979") {
		return false
	}
	sum := 0
	for i, r := range s {
		if r < '0' || r > '9' {
			return false
		}
		d := int(r - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return sum%10 == 0
}

func isbn10To13(isbn10 string) string {
	body := "978" + isbn10[:9]
	sum := 0
	for i, r := range body {
		d := int(r - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	check := (10 - sum%10) % 10
	return body + string(rune('0'+check))
}
