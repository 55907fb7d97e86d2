package compiler

import "fmt"

// SyntaxError is raised by the tokenizer, the parser and the bytecode
// builder. Line is 1-based; Column is 0 when unknown.
type SyntaxError struct {
	Line    int
	Column  int
	Token   string
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("строка %d: %s (около \"%s\")", e.Line, e.Message, e.Token)
	}
	return fmt.Sprintf("строка %d: %s", e.Line, e.Message)
}

// syntaxErrorAt builds a SyntaxError located at tok.
func syntaxErrorAt(tok Token, format string, args ...any) *SyntaxError {
	err := &SyntaxError{
		Line:    tok.Pos.Line,
		Column:  tok.Pos.Column,
		Message: fmt.Sprintf(format, args...),
	}
	switch tok.Type {
	case TokenNewline, TokenEOF, TokenError:
	default:
		err.Token = tok.Literal
	}
	return err
}
