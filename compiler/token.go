package compiler

import (
	"fmt"

	"github.com/chazu/kumir/pkg/value"
)

// ---------------------------------------------------------------------------
// Token types for the KuMir tokenizer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber // 42, 3.14, 5.
	TokenString // "текст"
	TokenChar   // 'ы'

	// Words
	TokenTypeName // цел, вещ таб, целтаб
	TokenKeyword  // алг, нач, если, ...
	TokenName     // a possibly multi-word identifier

	// Operators: + - * / ** = <> < > <= >= и или не
	TokenOperator

	// Delimiters
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenAssign   // :=
	TokenColon    // :
	TokenComma    // ,
	TokenNewline  // end of line or ;
)

var tokenNames = map[TokenType]string{
	TokenEOF:      "EOF",
	TokenError:    "ERROR",
	TokenNumber:   "NUMBER",
	TokenString:   "STRING",
	TokenChar:     "CHAR",
	TokenTypeName: "TYPE",
	TokenKeyword:  "KEYWORD",
	TokenName:     "NAME",
	TokenOperator: "OP",
	TokenLParen:   "(",
	TokenRParen:   ")",
	TokenLBracket: "[",
	TokenRBracket: "]",
	TokenAssign:   ":=",
	TokenColon:    ":",
	TokenComma:    ",",
	TokenNewline:  "NEWLINE",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Position is a location in the source text. Line and Column are 1-based;
// Column counts runes.
type Position struct {
	Offset int
	Line   int
	Column int
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // unescaped text; for errors, the message
	Pos     Position // start position
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenNewline:
		return "NEWLINE"
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Is reports whether t has the given type and literal.
func (t Token) Is(typ TokenType, literal string) bool {
	return t.Type == typ && t.Literal == literal
}

// IsKeyword reports whether t is the given keyword.
func (t Token) IsKeyword(kw string) bool {
	return t.Is(TokenKeyword, kw)
}

// Keywords is the reserved word set. None of them may be used as a name.
var Keywords = map[string]bool{
	"алг": true, "нач": true, "кон": true, "дано": true, "надо": true,
	"арг": true, "рез": true, "аргрез": true,
	"если": true, "то": true, "иначе": true, "все": true,
	"выбор": true, "при": true,
	"нц": true, "кц": true, "кц_при": true, "раз": true, "пока": true,
	"для": true, "от": true, "до": true, "шаг": true, "выход": true,
	"утв": true, "стоп": true, "вывод": true, "ввод": true,
	"нс": true, "да": true, "нет": true,
	"использовать": true, "таб": true,
}

// wordOperators are the operators spelled as words.
var wordOperators = map[string]bool{
	"и":   true,
	"или": true,
	"не":  true,
}

// classifyWord returns the token type of a complete word.
func classifyWord(word string) TokenType {
	if _, ok := value.LookupType(word); ok {
		return TokenTypeName
	}
	if Keywords[word] {
		return TokenKeyword
	}
	if wordOperators[word] {
		return TokenOperator
	}
	return TokenName
}
