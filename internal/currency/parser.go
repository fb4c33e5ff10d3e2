package currency

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Magnitude suffixes accepted after the numeric literal.
var magnitudes = map[byte]decimal.Decimal{
	'k': decimal.New(1, 3),
	'm': decimal.New(1, 6),
	'b': decimal.New(1, 9),
}

// ParseAmount turns a free-form money string into (minor units, code).
//
// Grammar, consumed left to right with no backtracking:
//
//	amount   = [symbol] number [magnitude] [code]
//	symbol   = leading non-letter run known to the snapshot ("$", "€")
//	number   = digits with at most one '.' or ',' decimal separator
//	magnitude = 'k' | 'm' | 'b'   (x1e3, x1e6, x1e9)
//	code     = 3 letters, e.g. "USD"
//
// Spaces between tokens are ignored. A string carrying both a symbol
// and a trailing code is rejected; with neither, defaultCode applies.
// The result is scaled to the resolved currency's minor units and
// rounded half-to-even.
func ParseAmount(text, defaultCode string, snap Snapshot) (int64, string, error) {
	s := strings.Join(strings.Fields(strings.TrimSpace(text)), "")
	if s == "" {
		return 0, "", ErrInvalidAmountFormat
	}
	if s[0] == '+' || s[0] == '-' {
		// Direction comes from the command surface, never from the text.
		return 0, "", ErrInvalidAmountFormat
	}

	symbolCode, rest, err := takeSymbol(s, snap)
	if err != nil {
		return 0, "", err
	}

	number, rest, err := takeNumber(rest)
	if err != nil {
		return 0, "", err
	}

	multiplier := decimal.New(1, 0)
	if len(rest) > 0 {
		if mult, ok := magnitudes[lowerByte(rest[0])]; ok && len(rest) != 3 {
			// A 3-letter remainder is always a currency code, so
			// "20mad" keeps MAD intact while "20m" scales by 1e6.
			multiplier = mult
			rest = rest[1:]
		}
	}

	code := ""
	if len(rest) > 0 {
		if len(rest) != 3 || !allLetters(rest) {
			return 0, "", ErrInvalidAmountFormat
		}
		if symbolCode != "" {
			// Symbol and trailing code together is ambiguous input.
			return 0, "", ErrInvalidAmountFormat
		}
		code = strings.ToUpper(rest)
	}

	switch {
	case symbolCode != "":
		code = symbolCode
	case code == "":
		code = strings.ToUpper(strings.TrimSpace(defaultCode))
	}

	cur, err := snap.Get(code)
	if err != nil {
		return 0, "", err
	}

	amount := number.Mul(multiplier)
	if !amount.IsPositive() {
		return 0, "", ErrInvalidAmountFormat
	}
	return RoundToMinor(amount, cur.MinorUnits), cur.Code, nil
}

// takeSymbol strips a leading currency symbol and resolves it against
// the snapshot. An empty prefix is fine; a prefix the table does not
// know is not.
func takeSymbol(s string, snap Snapshot) (code, rest string, err error) {
	end := 0
	for end < len(s) {
		r, size := utf8.DecodeRuneInString(s[end:])
		if unicode.IsDigit(r) || unicode.IsLetter(r) || r == '.' || r == ',' {
			break
		}
		end += size
	}
	if end == 0 {
		return "", s, nil
	}
	symbol := s[:end]
	code, ok := snap.bySymbol[symbol]
	if !ok {
		return "", "", ErrUnknownCurrencySymbol
	}
	return code, s[end:], nil
}

// takeNumber consumes the numeric literal. Signs are rejected: the
// direction of a transaction comes from the command surface, never
// from the money text.
func takeNumber(s string) (decimal.Decimal, string, error) {
	end := 0
	digits := 0
	separators := 0
	for end < len(s) {
		c := s[end]
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' || c == ',':
			separators++
		default:
			goto done
		}
		end++
	}
done:
	if digits == 0 || separators > 1 {
		return decimal.Decimal{}, "", ErrInvalidAmountFormat
	}
	literal := strings.ReplaceAll(s[:end], ",", ".")
	d, err := decimal.NewFromString(literal)
	if err != nil {
		return decimal.Decimal{}, "", ErrInvalidAmountFormat
	}
	return d, s[end:], nil
}

func allLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func lowerByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
