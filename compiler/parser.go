package compiler

import (
	"github.com/chazu/kumir/pkg/value"
)

// ---------------------------------------------------------------------------
// Parser: KuMir source to a flat statement list
// ---------------------------------------------------------------------------

// envKind identifies an open syntactic environment.
type envKind int

const (
	envIntro envKind = iota // before the first алг
	envMain                 // body of the first algorithm
	envAlg                  // body of any other algorithm
	envIf
	envLoopCount
	envLoopWhile
	envLoopFor
	envLoopUntil
	envSwitch
)

// envFrame is one entry of the environment stack.
type envFrame struct {
	kind    envKind
	line    int
	cases   int  // switch: number of при branches seen
	hasElse bool // if/switch: иначе seen
	post    Expr // algorithm: надо condition
	postLn  int
}

func (f *envFrame) isLoop() bool {
	switch f.kind {
	case envLoopCount, envLoopWhile, envLoopFor, envLoopUntil:
		return true
	}
	return false
}

func (f *envFrame) isAlg() bool {
	return f.kind == envMain || f.kind == envAlg
}

// Parser turns KuMir source into statements. It stops at the first error.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	envs      []*envFrame
	stmts     []Stmt
	algCount  int
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a whole program.
func Parse(source string) ([]Stmt, error) {
	return NewParser(source).Parse()
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// curKeywordIs checks if the current token is the given keyword.
func (p *Parser) curKeywordIs(kw string) bool {
	return p.curToken.IsKeyword(kw)
}

// expectKeyword consumes the given keyword or fails.
func (p *Parser) expectKeyword(kw, msg string) error {
	if !p.curKeywordIs(kw) {
		return p.errorf("%s", msg)
	}
	p.nextToken()
	return nil
}

// expect consumes a token of the given type or fails.
func (p *Parser) expect(t TokenType, msg string) error {
	if !p.curTokenIs(t) {
		return p.errorf("%s", msg)
	}
	p.nextToken()
	return nil
}

// errorf builds a SyntaxError at the current token. A pending lexer error
// takes precedence, since it explains why the token is unexpected.
func (p *Parser) errorf(format string, args ...any) error {
	if p.curToken.Type == TokenError {
		return syntaxErrorAt(p.curToken, "%s", p.curToken.Literal)
	}
	return syntaxErrorAt(p.curToken, format, args...)
}

// unexpected reports the current token as out of place.
func (p *Parser) unexpected() error {
	switch p.curToken.Type {
	case TokenNewline:
		return p.errorf("неожиданный конец строки")
	case TokenEOF:
		return p.errorf("неожиданный конец программы")
	}
	return p.errorf("непонятная запись \"%s\"", p.curToken.Literal)
}

// emit appends a statement.
func (p *Parser) emit(s Stmt) {
	p.stmts = append(p.stmts, s)
}

func (p *Parser) top() *envFrame {
	if len(p.envs) == 0 {
		return nil
	}
	return p.envs[len(p.envs)-1]
}

func (p *Parser) push(kind envKind, line int) *envFrame {
	f := &envFrame{kind: kind, line: line}
	p.envs = append(p.envs, f)
	return f
}

func (p *Parser) pop() {
	p.envs = p.envs[:len(p.envs)-1]
}

// endStatement accepts the end of a simple statement: a line break, the end
// of input, or a keyword starting the next statement on the same line.
func (p *Parser) endStatement() error {
	switch p.curToken.Type {
	case TokenNewline:
		p.nextToken()
		return nil
	case TokenEOF, TokenKeyword:
		return nil
	}
	return p.unexpected()
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// Parse parses all statements up to the end of input.
func (p *Parser) Parse() ([]Stmt, error) {
	p.push(envIntro, 1)
	for !p.curTokenIs(TokenEOF) {
		if err := p.parseStatement(); err != nil {
			return nil, err
		}
	}
	if f := p.top(); f != nil && f.kind != envIntro {
		return nil, &SyntaxError{Line: p.curToken.Pos.Line, Message: missingCloser(f.kind)}
	}
	return p.stmts, nil
}

func missingCloser(kind envKind) string {
	switch kind {
	case envMain, envAlg:
		return "нет кон после нач"
	case envIf, envSwitch:
		return "нет все"
	}
	return "нет кц"
}

// parseStatement parses one statement, leaving the current token at the
// start of the next one.
func (p *Parser) parseStatement() error {
	tok := p.curToken

	if tok.Type == TokenNewline {
		p.nextToken()
		return nil
	}

	if f := p.top(); f != nil && f.kind == envSwitch && f.cases == 0 &&
		!tok.IsKeyword("при") && !tok.IsKeyword("все") && !tok.IsKeyword("иначе") {
		return p.errorf("после выбор должно идти при")
	}

	switch tok.Type {
	case TokenKeyword:
		return p.parseKeywordStatement()
	case TokenTypeName:
		if err := p.requireStatementScope(); err != nil {
			return err
		}
		return p.parseDeclaration()
	case TokenName:
		if err := p.requireStatementScope(); err != nil {
			return err
		}
		return p.parseNameStatement()
	}
	return p.unexpected()
}

// requireStatementScope rejects simple statements between algorithms.
func (p *Parser) requireStatementScope() error {
	if len(p.envs) == 0 {
		return p.errorf("между алгоритмами могут стоять только новые алгоритмы")
	}
	return nil
}

// requireBody rejects control-flow statements outside algorithm bodies.
func (p *Parser) requireBody() error {
	f := p.top()
	if f == nil || f.kind == envIntro {
		return p.errorf("\"%s\" можно использовать только внутри алгоритма", p.curToken.Literal)
	}
	return nil
}

func (p *Parser) parseKeywordStatement() error {
	kw := p.curToken.Literal
	switch kw {
	case "алг":
		return p.parseAlgorithm()
	case "кон":
		return p.parseAlgEnd()
	case "использовать":
		return p.parseUse()
	case "если":
		return p.parseIf()
	case "иначе":
		return p.parseElse()
	case "все":
		return p.parseIfEnd()
	case "выбор":
		return p.parseSwitch()
	case "при":
		return p.parseCase()
	case "нц":
		return p.parseLoopStart()
	case "кц", "кц_при":
		return p.parseLoopEnd()
	}

	if err := p.requireStatementScope(); err != nil {
		return err
	}
	switch kw {
	case "вывод":
		return p.parseOutput()
	case "ввод":
		return p.parseInput()
	case "утв":
		return p.parseAssert()
	case "стоп":
		p.emit(&Stop{LineVal: p.curToken.Pos.Line})
		p.nextToken()
		return p.endStatement()
	case "выход":
		return p.parseExit()
	}
	return p.errorf("\"%s\" не может начинать оператор", kw)
}

// ---------------------------------------------------------------------------
// Algorithms
// ---------------------------------------------------------------------------

// parseAlgorithm parses
//
//	алг [type] [name] [(params)] [дано expr] [надо expr] нач
func (p *Parser) parseAlgorithm() error {
	line := p.curToken.Pos.Line
	if f := p.top(); f != nil {
		if f.kind != envIntro {
			return p.errorf("алг внутри алгоритма: нет кон")
		}
		p.pop()
	}
	isMain := p.algCount == 0
	p.algCount++
	p.nextToken()

	start := &AlgStart{LineVal: line, IsMain: isMain}
	if p.curTokenIs(TokenTypeName) {
		typ, err := p.parseTypeWord()
		if err != nil {
			return err
		}
		if typ.Table {
			return p.errorf("алгоритм не может возвращать таблицу")
		}
		start.ReturnType = typ
	}
	if p.curTokenIs(TokenName) {
		start.Name = p.curToken.Literal
		p.nextToken()
	}
	if start.Name == "" {
		if start.ReturnType.IsValid() {
			return p.errorf("у алгоритма-функции должно быть имя")
		}
		if !isMain {
			return p.errorf("без имени может быть только первый алгоритм")
		}
	}
	if p.curTokenIs(TokenLParen) {
		params, err := p.parseParams()
		if err != nil {
			return err
		}
		start.Params = params
	}

	var pre Expr
	preLine := 0
	frame := &envFrame{kind: envAlg, line: line}
	if isMain {
		frame.kind = envMain
	}
	for !p.curKeywordIs("нач") {
		switch {
		case p.curTokenIs(TokenNewline):
			p.nextToken()
		case p.curKeywordIs("дано") && pre == nil:
			preLine = p.curToken.Pos.Line
			p.nextToken()
			e, err := p.parseExpr()
			if err != nil {
				return err
			}
			pre = e
		case p.curKeywordIs("надо") && frame.post == nil:
			frame.postLn = p.curToken.Pos.Line
			p.nextToken()
			e, err := p.parseExpr()
			if err != nil {
				return err
			}
			frame.post = e
		default:
			return p.errorf("нет нач после алг")
		}
	}
	p.nextToken() // нач

	p.emit(start)
	if pre != nil {
		p.emit(&Assert{LineVal: preLine, Cond: pre})
	}
	p.envs = append(p.envs, frame)
	return nil
}

// parseParams parses a parenthesised parameter list. Mode and type carry
// over from one parameter to the next.
func (p *Parser) parseParams() ([]Param, error) {
	p.nextToken() // (
	if p.curTokenIs(TokenRParen) {
		p.nextToken()
		return nil, nil
	}

	var params []Param
	mode := ModeIn
	var typ value.Type
	for {
		switch {
		case p.curKeywordIs("арг"):
			mode = ModeIn
			p.nextToken()
			if p.curKeywordIs("рез") {
				mode = ModeInOut
				p.nextToken()
			}
		case p.curKeywordIs("рез"):
			mode = ModeOut
			p.nextToken()
		case p.curKeywordIs("аргрез"):
			mode = ModeInOut
			p.nextToken()
		}
		if p.curTokenIs(TokenTypeName) {
			t, err := p.parseTypeWord()
			if err != nil {
				return nil, err
			}
			typ = t
		}
		if err := p.checkName(); err != nil {
			return nil, err
		}
		if !typ.IsValid() {
			return nil, p.errorf("не указан тип параметра")
		}
		params = append(params, Param{Mode: mode, Type: typ, Name: p.curToken.Literal})
		p.nextToken()

		switch {
		case p.curTokenIs(TokenComma):
			p.nextToken()
		case p.curTokenIs(TokenRParen):
			p.nextToken()
			return params, nil
		default:
			return nil, p.errorf("нет закрывающей скобки в списке параметров")
		}
	}
}

// parseTypeWord reads a type word plus an optional "таб".
func (p *Parser) parseTypeWord() (value.Type, error) {
	typ, _ := value.LookupType(p.curToken.Literal)
	p.nextToken()
	if p.curKeywordIs("таб") {
		if typ.Table || typ.Kind == value.KindFile {
			return typ, p.errorf("неверный тип таблицы")
		}
		typ.Table = true
		p.nextToken()
	}
	return typ, nil
}

// checkName requires the current token to be a usable name.
func (p *Parser) checkName() error {
	switch p.curToken.Type {
	case TokenName:
		return nil
	case TokenKeyword, TokenTypeName:
		return p.errorf("\"%s\" является служебным словом и не может быть именем", p.curToken.Literal)
	}
	return p.errorf("нет имени")
}

func (p *Parser) parseAlgEnd() error {
	f := p.top()
	if f == nil || f.kind == envIntro {
		return p.errorf("кон без нач")
	}
	if !f.isAlg() {
		return p.errorf("%s перед кон", missingCloser(f.kind))
	}
	if f.post != nil {
		p.emit(&Assert{LineVal: f.postLn, Cond: f.post})
	}
	p.emit(&AlgEnd{LineVal: p.curToken.Pos.Line})
	p.pop()
	p.nextToken()
	return p.endStatement()
}

func (p *Parser) parseUse() error {
	line := p.curToken.Pos.Line
	if f := p.top(); f == nil || f.kind != envIntro {
		return p.errorf("использовать можно только до первого алгоритма")
	}
	p.nextToken()
	if !p.curTokenIs(TokenName) {
		return p.errorf("нет имени исполнителя")
	}
	p.emit(&Use{LineVal: line, Actor: p.curToken.Literal})
	p.nextToken()
	return p.endStatement()
}

// ---------------------------------------------------------------------------
// Simple statements
// ---------------------------------------------------------------------------

// parseDeclaration parses "type [таб] name [bounds] [:= expr | = const], ...".
func (p *Parser) parseDeclaration() error {
	line := p.curToken.Pos.Line
	typ, err := p.parseTypeWord()
	if err != nil {
		return err
	}
	decl := &VarDecl{LineVal: line, Type: typ}

	for {
		if err := p.checkName(); err != nil {
			return err
		}
		name := p.curToken.Literal
		p.nextToken()

		if typ.Table {
			if !p.curTokenIs(TokenLBracket) {
				return p.errorf("нет границ таблицы \"%s\"", name)
			}
			bounds, err := p.parseBounds()
			if err != nil {
				return err
			}
			decl.Tables = append(decl.Tables, TableDecl{Name: name, Bounds: bounds})
		} else {
			if p.curTokenIs(TokenLBracket) {
				return p.errorf("у простой величины \"%s\" не может быть границ", name)
			}
			decl.Names = append(decl.Names, name)
		}

		switch {
		case p.curTokenIs(TokenAssign):
			if typ.Table {
				return p.errorf("таблицу нельзя инициализировать при описании")
			}
			p.nextToken()
			init, err := p.parseExpr()
			if err != nil {
				return err
			}
			decl.Init = init
		case p.curToken.Is(TokenOperator, "="):
			if typ.Table {
				return p.errorf("таблицу нельзя инициализировать при описании")
			}
			p.nextToken()
			init, err := p.parseConstant()
			if err != nil {
				return err
			}
			decl.Init = init
		}

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}

	if decl.Init != nil && len(decl.Names) != 1 {
		return &SyntaxError{Line: line, Message: "начальное значение можно задать только одной величине"}
	}
	p.emit(decl)
	return p.endStatement()
}

// parseBounds parses "[lo:hi, lo:hi, ...]".
func (p *Parser) parseBounds() ([]Bound, error) {
	p.nextToken() // [
	var bounds []Bound
	for {
		lo, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenColon, "нет \":\" в границах таблицы"); err != nil {
			return nil, err
		}
		hi, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		bounds = append(bounds, Bound{Lo: lo, Hi: hi})
		if len(bounds) > value.MaxDims {
			return nil, p.errorf("у таблицы не может быть больше %d измерений", value.MaxDims)
		}
		if p.curTokenIs(TokenComma) {
			p.nextToken()
			continue
		}
		if err := p.expect(TokenRBracket, "нет \"]\" после границ таблицы"); err != nil {
			return nil, err
		}
		return bounds, nil
	}
}

// parseConstant parses the literal after "=" in a constant declaration.
func (p *Parser) parseConstant() (Expr, error) {
	var sign string
	if p.curToken.Is(TokenOperator, "-") || p.curToken.Is(TokenOperator, "+") {
		sign = p.curToken.Literal
		p.nextToken()
	}
	c, ok, err := p.literal()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, p.errorf("после \"=\" должна стоять константа")
	}
	p.nextToken()
	expr := Expr{c}
	if sign != "" {
		expr = append(expr, &Operator{Op: sign, Unary: true})
	}
	return expr, nil
}

// parseNameStatement parses an assignment, an element assignment or a call.
func (p *Parser) parseNameStatement() error {
	line := p.curToken.Pos.Line
	name := p.curToken.Literal
	p.nextToken()

	switch {
	case p.curTokenIs(TokenAssign):
		p.nextToken()
		e, err := p.parseExpr()
		if err != nil {
			return err
		}
		p.emit(&Assign{LineVal: line, Name: name, Value: e})

	case p.curTokenIs(TokenLBracket):
		idx, err := p.parseIndexes()
		if err != nil {
			return err
		}
		if err := p.expect(TokenAssign, "нет \":=\""); err != nil {
			return err
		}
		e, err := p.parseExpr()
		if err != nil {
			return err
		}
		p.emit(&SetItem{LineVal: line, Name: name, Indexes: idx, Value: e})

	case p.curTokenIs(TokenLParen):
		args, err := p.parseArgs()
		if err != nil {
			return err
		}
		p.emit(&CallStmt{LineVal: line, Call: &Call{Name: name, Args: args}})

	default:
		p.emit(&CallStmt{LineVal: line, Call: &Call{Name: name}})
	}
	return p.endStatement()
}

func (p *Parser) parseOutput() error {
	line := p.curToken.Pos.Line
	p.nextToken()
	out := &Output{LineVal: line}
	for {
		e, err := p.parseExpr()
		if err != nil {
			return err
		}
		out.Exprs = append(out.Exprs, e)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	p.emit(out)
	return p.endStatement()
}

func (p *Parser) parseInput() error {
	line := p.curToken.Pos.Line
	p.nextToken()
	in := &Input{LineVal: line}
	for {
		if !p.curTokenIs(TokenName) {
			return p.errorf("нет имени величины для ввода")
		}
		target := InputTarget{Name: p.curToken.Literal}
		p.nextToken()
		if p.curTokenIs(TokenLBracket) {
			idx, err := p.parseIndexes()
			if err != nil {
				return err
			}
			target.Indexes = idx
		}
		in.Targets = append(in.Targets, target)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	p.emit(in)
	return p.endStatement()
}

func (p *Parser) parseAssert() error {
	line := p.curToken.Pos.Line
	p.nextToken()
	e, err := p.parseExpr()
	if err != nil {
		return err
	}
	p.emit(&Assert{LineVal: line, Cond: e})
	return p.endStatement()
}

func (p *Parser) parseExit() error {
	inLoop := false
	for i := len(p.envs) - 1; i >= 0 && !p.envs[i].isAlg(); i-- {
		if p.envs[i].isLoop() {
			inLoop = true
			break
		}
	}
	if !inLoop {
		return p.errorf("выход можно использовать только внутри цикла")
	}
	p.emit(&Exit{LineVal: p.curToken.Pos.Line})
	p.nextToken()
	return p.endStatement()
}

// ---------------------------------------------------------------------------
// Conditionals
// ---------------------------------------------------------------------------

func (p *Parser) parseIf() error {
	line := p.curToken.Pos.Line
	if err := p.requireBody(); err != nil {
		return err
	}
	p.nextToken()
	cond, err := p.parseExpr()
	if err != nil {
		return err
	}
	for p.curTokenIs(TokenNewline) {
		p.nextToken()
	}
	if err := p.expectKeyword("то", "нет то после условия"); err != nil {
		return err
	}
	p.push(envIf, line)
	p.emit(&IfStart{LineVal: line, Cond: cond})
	return nil
}

func (p *Parser) parseElse() error {
	line := p.curToken.Pos.Line
	f := p.top()
	if f == nil || (f.kind != envIf && f.kind != envSwitch) {
		return p.errorf("иначе без если или выбор")
	}
	if f.hasElse {
		return p.errorf("второе иначе")
	}
	f.hasElse = true
	p.emit(&ElseStart{LineVal: line})
	p.nextToken()
	if f.kind == envSwitch && p.curTokenIs(TokenColon) {
		p.nextToken()
	}
	return nil
}

func (p *Parser) parseIfEnd() error {
	line := p.curToken.Pos.Line
	f := p.top()
	switch {
	case f != nil && f.kind == envIf:
		p.emit(&IfEnd{LineVal: line})
	case f != nil && f.kind == envSwitch:
		if f.cases == 0 {
			return p.errorf("в выбор нет ни одного при")
		}
		for i := 0; i < f.cases; i++ {
			p.emit(&IfEnd{LineVal: line})
		}
	default:
		return p.errorf("все без если или выбор")
	}
	p.pop()
	p.nextToken()
	return p.endStatement()
}

func (p *Parser) parseSwitch() error {
	if err := p.requireBody(); err != nil {
		return err
	}
	p.push(envSwitch, p.curToken.Pos.Line)
	p.nextToken()
	return p.endStatement()
}

// parseCase turns "при cond:" into an if branch of the enclosing switch.
func (p *Parser) parseCase() error {
	line := p.curToken.Pos.Line
	f := p.top()
	if f == nil || f.kind != envSwitch {
		return p.errorf("при без выбор")
	}
	if f.hasElse {
		return p.errorf("при после иначе")
	}
	p.nextToken()
	cond, err := p.parseExpr()
	if err != nil {
		return err
	}
	if err := p.expect(TokenColon, "нет \":\" после условия при"); err != nil {
		return err
	}
	if f.cases > 0 {
		p.emit(&ElseStart{LineVal: line})
	}
	p.emit(&IfStart{LineVal: line, Cond: cond})
	f.cases++
	return nil
}

// ---------------------------------------------------------------------------
// Loops
// ---------------------------------------------------------------------------

func (p *Parser) parseLoopStart() error {
	line := p.curToken.Pos.Line
	if err := p.requireBody(); err != nil {
		return err
	}
	p.nextToken()

	switch {
	case p.curKeywordIs("пока"):
		p.nextToken()
		cond, err := p.parseExpr()
		if err != nil {
			return err
		}
		p.push(envLoopWhile, line)
		p.emit(&LoopWhileStart{LineVal: line, Cond: cond})

	case p.curKeywordIs("для"):
		p.nextToken()
		if err := p.checkName(); err != nil {
			return err
		}
		loop := &LoopForStart{LineVal: line, Var: p.curToken.Literal}
		p.nextToken()
		if err := p.expectKeyword("от", "нет от в цикле для"); err != nil {
			return err
		}
		from, err := p.parseExpr()
		if err != nil {
			return err
		}
		if err := p.expectKeyword("до", "нет до в цикле для"); err != nil {
			return err
		}
		to, err := p.parseExpr()
		if err != nil {
			return err
		}
		loop.From, loop.To = from, to
		if p.curKeywordIs("шаг") {
			p.nextToken()
			step, err := p.parseExpr()
			if err != nil {
				return err
			}
			loop.Step = step
		} else {
			loop.Step = Expr{&Const{Value: value.Int(1)}}
		}
		p.push(envLoopFor, line)
		p.emit(loop)

	case p.curTokenIs(TokenNewline):
		p.nextToken()
		p.push(envLoopUntil, line)
		p.emit(&LoopUntilStart{LineVal: line})

	default:
		count, err := p.parseExpr()
		if err != nil {
			return err
		}
		if err := p.expectKeyword("раз", "нет раз после числа повторений"); err != nil {
			return err
		}
		p.push(envLoopCount, line)
		p.emit(&LoopCountStart{LineVal: line, Count: count})
	}
	return nil
}

func (p *Parser) parseLoopEnd() error {
	line := p.curToken.Pos.Line
	f := p.top()
	if f == nil || !f.isLoop() {
		return p.errorf("кц без нц")
	}
	fused := p.curKeywordIs("кц_при")
	p.nextToken()

	if fused || p.curKeywordIs("при") {
		if f.kind != envLoopUntil {
			return p.errorf("кц при допустимо только в цикле нц ... кц при")
		}
		if !fused {
			p.nextToken()
		}
		cond, err := p.parseExpr()
		if err != nil {
			return err
		}
		p.emit(&LoopUntilEnd{LineVal: line, Cond: cond})
		p.pop()
		return p.endStatement()
	}

	switch f.kind {
	case envLoopCount:
		p.emit(&LoopCountEnd{LineVal: line})
	case envLoopWhile:
		p.emit(&LoopWhileEnd{LineVal: line})
	case envLoopFor:
		p.emit(&LoopForEnd{LineVal: line})
	case envLoopUntil:
		p.emit(&LoopUntilEnd{LineVal: line, Cond: Expr{&Const{Value: value.Bool(true)}}})
	}
	p.pop()
	return p.endStatement()
}
