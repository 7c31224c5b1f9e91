package cli

import (
	"errors"
	"strings"
)

// ErrUnterminatedQuote is returned for a line with an odd number of quotes.
var ErrUnterminatedQuote = errors.New("syntax error: unterminated quote")

// tokenize splits line on blanks. A double-quoted run is one token, blanks
// included; "" yields an empty token. There are no escapes.
func tokenize(line string) ([]string, error) {
	var (
		tokens []string
		word   strings.Builder
		quoted bool
	)
	for _, r := range line {
		switch {
		case r == '"' && quoted:
			tokens = append(tokens, word.String())
			word.Reset()
			quoted = false
		case r == '"':
			quoted = true
		case (r == ' ' || r == '\t') && !quoted:
			if word.Len() > 0 {
				tokens = append(tokens, word.String())
				word.Reset()
			}
		default:
			word.WriteRune(r)
		}
	}
	if quoted {
		return nil, ErrUnterminatedQuote
	}
	if word.Len() > 0 {
		tokens = append(tokens, word.String())
	}
	return tokens, nil
}
