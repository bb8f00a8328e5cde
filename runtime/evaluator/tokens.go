package evaluator

import (
	"github.com/viant/parsly"
	"github.com/viant/parsly/matcher"
)

// Token codes start at 1 to avoid clash with parsly.EOF.
const (
	whitespaceCode = iota + 1
	orCode
	andCode
	eqCode
	neCode
	leCode
	geCode
	ltCode
	gtCode
	notCode
	openParenCode
	closeParenCode
	numberCode
	stringCode
	identifierCode
)

var (
	whitespaceToken = parsly.NewToken(whitespaceCode, "Whitespace", matcher.NewWhiteSpace())
	orToken         = parsly.NewToken(orCode, "||", matcher.NewFragment("||"))
	andToken        = parsly.NewToken(andCode, "&&", matcher.NewFragment("&&"))
	eqToken         = parsly.NewToken(eqCode, "==", matcher.NewFragment("=="))
	neToken         = parsly.NewToken(neCode, "!=", matcher.NewFragment("!="))
	leToken         = parsly.NewToken(leCode, "<=", matcher.NewFragment("<="))
	geToken         = parsly.NewToken(geCode, ">=", matcher.NewFragment(">="))
	ltToken         = parsly.NewToken(ltCode, "<", matcher.NewByte('<'))
	gtToken         = parsly.NewToken(gtCode, ">", matcher.NewByte('>'))
	notToken        = parsly.NewToken(notCode, "!", matcher.NewByte('!'))
	openParenToken  = parsly.NewToken(openParenCode, "(", matcher.NewByte('('))
	closeParenToken = parsly.NewToken(closeParenCode, ")", matcher.NewByte(')'))
	numberToken     = parsly.NewToken(numberCode, "Number", &numberMatcher{})
	stringToken     = parsly.NewToken(stringCode, "String", &stringMatcher{})
	identifierToken = parsly.NewToken(identifierCode, "Identifier", &identifierMatcher{})

	// multi byte operators must precede their single byte prefixes
	comparisonTokens = []*parsly.Token{eqToken, neToken, leToken, geToken, ltToken, gtToken}
	operandTokens    = []*parsly.Token{openParenToken, numberToken, stringToken, identifierToken}
)

// identifierMatcher matches dotted context paths such as threat.score
type identifierMatcher struct{}

func (m *identifierMatcher) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	pos := cursor.Pos
	size := cursor.InputSize
	if pos >= size {
		return 0
	}
	if !isLetter(input[pos]) && input[pos] != '_' {
		return 0
	}
	matched := 1
	for i := pos + 1; i < size; i++ {
		c := input[i]
		if isLetter(c) || isDigit(c) || c == '_' {
			matched++
			continue
		}
		// a dot must be followed by another segment
		if c == '.' && i+1 < size && (isLetter(input[i+1]) || input[i+1] == '_' || isDigit(input[i+1])) {
			matched++
			continue
		}
		break
	}
	return matched
}

// numberMatcher matches integer and decimal literals with an optional sign
type numberMatcher struct{}

func (m *numberMatcher) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	pos := cursor.Pos
	size := cursor.InputSize
	if pos >= size {
		return 0
	}
	i := pos
	if input[i] == '-' {
		i++
	}
	digits := 0
	for ; i < size && isDigit(input[i]); i++ {
		digits++
	}
	if digits == 0 {
		return 0
	}
	if i+1 < size && input[i] == '.' && isDigit(input[i+1]) {
		i++
		for ; i < size && isDigit(input[i]); i++ {
		}
	}
	if i < size && (isLetter(input[i]) || input[i] == '_') {
		return 0
	}
	return i - pos
}

// stringMatcher matches single or double quoted literals with backslash escapes
type stringMatcher struct{}

func (m *stringMatcher) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	pos := cursor.Pos
	size := cursor.InputSize
	if pos >= size {
		return 0
	}
	quote := input[pos]
	if quote != '\'' && quote != '"' {
		return 0
	}
	for i := pos + 1; i < size; i++ {
		switch input[i] {
		case '\\':
			i++
		case quote:
			return i - pos + 1
		}
	}
	return 0
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
