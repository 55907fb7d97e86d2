package compiler

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for KuMir source text
// ---------------------------------------------------------------------------

// Lexer turns KuMir source into a stream of tokens. Tokens are produced on
// demand by NextToken; a NAME token may span several words, so the lexer
// keeps a small queue of tokens it had to read ahead.
type Lexer struct {
	input   string
	pos     int  // offset of ch
	readPos int  // offset after ch
	ch      rune // current character, 0 at end of input
	line    int  // line of ch (1-based)
	col     int  // column of ch (1-based, in runes)

	pending []Token
	done    bool // final NEWLINE emitted
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input)
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

// NextToken returns the next token. After the end of input it keeps
// returning EOF.
func (l *Lexer) NextToken() Token {
	if len(l.pending) > 0 {
		tok := l.pending[0]
		l.pending = l.pending[1:]
		return tok
	}

	tok := l.scan()
	if tok.Type != TokenName {
		return tok
	}

	// A name keeps absorbing following NAME and NUMBER words, so that
	// "сумма квадратов 2" is one identifier. Inner spacing is normalized.
	start, end := tok.Pos.Offset, tok.Pos.Offset+len(tok.Literal)
	for {
		next := l.scan()
		if next.Type != TokenName && next.Type != TokenNumber {
			l.pending = append(l.pending, next)
			break
		}
		end = next.Pos.Offset + len(next.Literal)
	}
	tok.Literal = strings.Join(strings.Fields(l.input[start:end]), " ")
	return tok
}

// scan reads a single raw token.
func (l *Lexer) scan() Token {
	l.skipSpaceAndComments()
	pos := l.position()

	switch {
	case l.ch == 0:
		if !l.done {
			l.done = true
			return Token{Type: TokenNewline, Literal: "\n", Pos: pos}
		}
		return Token{Type: TokenEOF, Pos: pos}

	case l.ch == '\n' || l.ch == ';':
		lit := string(l.ch)
		l.readChar()
		return Token{Type: TokenNewline, Literal: lit, Pos: pos}

	case l.ch == '(':
		l.readChar()
		return Token{Type: TokenLParen, Literal: "(", Pos: pos}

	case l.ch == ')':
		l.readChar()
		return Token{Type: TokenRParen, Literal: ")", Pos: pos}

	case l.ch == '[':
		l.readChar()
		return Token{Type: TokenLBracket, Literal: "[", Pos: pos}

	case l.ch == ']':
		l.readChar()
		return Token{Type: TokenRBracket, Literal: "]", Pos: pos}

	case l.ch == ',':
		l.readChar()
		return Token{Type: TokenComma, Literal: ",", Pos: pos}

	case l.ch == ':':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return Token{Type: TokenAssign, Literal: ":=", Pos: pos}
		}
		return Token{Type: TokenColon, Literal: ":", Pos: pos}

	case l.ch == '"':
		return l.readString(pos)

	case l.ch == '\'':
		return l.readCharLiteral(pos)

	case isDigit(l.ch):
		return l.readNumber(pos)

	case isWordStart(l.ch):
		return l.readWord(pos)
	}

	return l.readOperator(pos)
}

// skipSpaceAndComments skips blanks and "|" comments. Newlines are tokens
// and are left in place.
func (l *Lexer) skipSpaceAndComments() {
	for {
		switch l.ch {
		case ' ', '\t', '\r', '\f', '\v':
			l.readChar()
		case '|':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

// readString reads a "..." literal. Strings cannot span lines.
func (l *Lexer) readString(pos Position) Token {
	l.readChar() // opening quote
	start := l.pos
	for l.ch != '"' {
		if l.ch == '\n' || l.ch == 0 {
			return Token{Type: TokenError, Literal: "нет закрывающей кавычки", Pos: pos}
		}
		l.readChar()
	}
	lit := l.input[start:l.pos]
	l.readChar() // closing quote
	return Token{Type: TokenString, Literal: lit, Pos: pos}
}

// readCharLiteral reads a 'x' literal holding exactly one character.
func (l *Lexer) readCharLiteral(pos Position) Token {
	l.readChar() // opening quote
	if l.ch == '\'' || l.ch == '\n' || l.ch == 0 {
		return Token{Type: TokenError, Literal: "пустой символ", Pos: pos}
	}
	ch := l.ch
	l.readChar()
	if l.ch != '\'' {
		return Token{Type: TokenError, Literal: "в кавычках '' должен быть ровно один символ", Pos: pos}
	}
	l.readChar()
	return Token{Type: TokenChar, Literal: string(ch), Pos: pos}
}

// readNumber reads an integer (digits) or a real (digits '.' digits*).
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: pos}
}

// readWord reads one word and classifies it.
func (l *Lexer) readWord(pos Position) Token {
	start := l.pos
	for isWordStart(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	word := l.input[start:l.pos]
	return Token{Type: classifyWord(word), Literal: word, Pos: pos}
}

// readOperator reads a symbolic operator.
func (l *Lexer) readOperator(pos Position) Token {
	ch := l.ch
	l.readChar()
	switch ch {
	case '+', '-', '/', '=':
		return Token{Type: TokenOperator, Literal: string(ch), Pos: pos}
	case '*':
		if l.ch == '*' {
			l.readChar()
			return Token{Type: TokenOperator, Literal: "**", Pos: pos}
		}
		return Token{Type: TokenOperator, Literal: "*", Pos: pos}
	case '<':
		if l.ch == '=' || l.ch == '>' {
			lit := "<" + string(l.ch)
			l.readChar()
			return Token{Type: TokenOperator, Literal: lit, Pos: pos}
		}
		return Token{Type: TokenOperator, Literal: "<", Pos: pos}
	case '>':
		if l.ch == '=' {
			l.readChar()
			return Token{Type: TokenOperator, Literal: ">=", Pos: pos}
		}
		return Token{Type: TokenOperator, Literal: ">", Pos: pos}
	}
	return Token{Type: TokenError, Literal: "недопустимый символ " + quoteRune(ch), Pos: pos}
}

// Helper functions

func isWordStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func quoteRune(r rune) string {
	return "\"" + string(r) + "\""
}

// Tokenize returns all tokens from the input, stopping after EOF or the
// first error token.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}
