package parser

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokSymbol
	tokPattern
	tokOperator
)

type token struct {
	kind tokenKind
	text string
	pos  int

	// pattern parts, set for tokPattern
	name     string
	blanks   int
	blankOf  string
	optional bool
}

// operators are matched longest first.
var operatorTexts = []string{
	"===", "=!=", "...",
	":=", "->", ":>", "<>", "~~", "/.", "//", "/;", "==", "!=", "<=", ">=", "&&", "||", "..",
	"[", "]", "{", "}", "(", ")", ",", ";", "=", "+", "-", "*", "/", "^", "|", "!", "<", ">", "%",
}

var namedCharacters = map[string]rune{
	"Alpha":      'α',
	"Beta":       'β',
	"Gamma":      'γ',
	"Delta":      'δ',
	"Epsilon":    'ε',
	"Lambda":     'λ',
	"Mu":         'μ',
	"Pi":         'π',
	"Sigma":      'σ',
	"Theta":      'θ',
	"Omega":      'ω',
	"Degree":     '°',
	"Infinity":   '∞',
	"CirclePlus": '⊕',
}

type lexer struct {
	src  string
	pos  int
	toks []token
}

func tokenize(src string) ([]token, error) {
	lx := &lexer{src: src}
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		lx.toks = append(lx.toks, tok)
		if tok.kind == tokEOF {
			return lx.toks, nil
		}
	}
}

func (lx *lexer) peekRune(offset int) rune {
	p := lx.pos + offset
	if p >= len(lx.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(lx.src[p:])
	return r
}

func (lx *lexer) skipSpaceAndComments() error {
	for lx.pos < len(lx.src) {
		r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
		if unicode.IsSpace(r) {
			lx.pos += size
			continue
		}
		if strings.HasPrefix(lx.src[lx.pos:], "(*") {
			if err := lx.skipComment(); err != nil {
				return err
			}
			continue
		}
		return nil
	}
	return nil
}

func (lx *lexer) skipComment() error {
	start := lx.pos
	depth := 0
	for lx.pos < len(lx.src) {
		switch {
		case strings.HasPrefix(lx.src[lx.pos:], "(*"):
			depth++
			lx.pos += 2
		case strings.HasPrefix(lx.src[lx.pos:], "*)"):
			depth--
			lx.pos += 2
			if depth == 0 {
				return nil
			}
		default:
			lx.pos++
		}
	}
	return &SyntaxError{Pos: start, Msg: "unterminated comment", Incomplete: true}
}

func (lx *lexer) next() (token, error) {
	if err := lx.skipSpaceAndComments(); err != nil {
		return token{}, err
	}
	if lx.pos >= len(lx.src) {
		return token{kind: tokEOF, pos: lx.pos}, nil
	}
	start := lx.pos
	r := lx.peekRune(0)
	switch {
	case r == '"':
		return lx.readString()
	case isDigit(r) || (r == '.' && isDigit(lx.peekRune(1))):
		return lx.readNumber(), nil
	case isSymbolStart(r) || r == '_':
		return lx.readSymbolOrPattern()
	}
	for _, op := range operatorTexts {
		if strings.HasPrefix(lx.src[lx.pos:], op) {
			lx.pos += len(op)
			return token{kind: tokOperator, text: op, pos: start}, nil
		}
	}
	return token{}, &SyntaxError{Pos: start, Msg: "unexpected character " + strconv.QuoteRune(r)}
}

func (lx *lexer) readNumber() token {
	start := lx.pos
	for isDigit(lx.peekRune(0)) {
		lx.pos++
	}
	// "1.." is 1 followed by Repeated, not a real.
	if lx.peekRune(0) == '.' && lx.peekRune(1) != '.' {
		lx.pos++
		for isDigit(lx.peekRune(0)) {
			lx.pos++
		}
	}
	return token{kind: tokNumber, text: lx.src[start:lx.pos], pos: start}
}

func (lx *lexer) readName() string {
	start := lx.pos
	for lx.pos < len(lx.src) {
		r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
		if lx.pos == start && !isSymbolStart(r) {
			break
		}
		if lx.pos > start && !isSymbolPart(r) {
			break
		}
		lx.pos += size
	}
	return lx.src[start:lx.pos]
}

func (lx *lexer) readSymbolOrPattern() (token, error) {
	start := lx.pos
	name := ""
	if lx.peekRune(0) != '_' {
		name = lx.readName()
	}
	if lx.peekRune(0) != '_' {
		return token{kind: tokSymbol, text: name, pos: start}, nil
	}
	blanks := 0
	for lx.peekRune(0) == '_' && blanks < 3 {
		lx.pos++
		blanks++
	}
	tok := token{kind: tokPattern, pos: start, name: name, blanks: blanks}
	if isSymbolStart(lx.peekRune(0)) {
		tok.blankOf = lx.readName()
	}
	if blanks == 1 && tok.blankOf == "" && lx.peekRune(0) == '.' && lx.peekRune(1) != '.' {
		lx.pos++
		tok.optional = true
	}
	tok.text = lx.src[start:lx.pos]
	return tok, nil
}

func (lx *lexer) readString() (token, error) {
	start := lx.pos
	lx.pos++
	var b strings.Builder
	for {
		if lx.pos >= len(lx.src) {
			return token{}, &SyntaxError{Pos: start, Msg: "unterminated string", Incomplete: true}
		}
		r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
		lx.pos += size
		switch r {
		case '"':
			return token{kind: tokString, text: b.String(), pos: start}, nil
		case '\\':
			decoded, err := lx.readEscape()
			if err != nil {
				return token{}, err
			}
			b.WriteString(decoded)
		default:
			b.WriteRune(r)
		}
	}
}

func (lx *lexer) readEscape() (string, error) {
	start := lx.pos - 1
	if lx.pos >= len(lx.src) {
		return "", &SyntaxError{Pos: start, Msg: "unterminated string", Incomplete: true}
	}
	c := lx.src[lx.pos]
	lx.pos++
	switch c {
	case 'n':
		return "\n", nil
	case 't':
		return "\t", nil
	case 'r':
		return "\r", nil
	case '"', '\\':
		return string(c), nil
	case ':':
		return lx.readHexEscape(4, start)
	case '.':
		return lx.readHexEscape(2, start)
	case '[':
		end := strings.IndexByte(lx.src[lx.pos:], ']')
		if end < 0 {
			return "", &SyntaxError{Pos: start, Msg: "unterminated named character"}
		}
		name := lx.src[lx.pos : lx.pos+end]
		lx.pos += end + 1
		if r, ok := namedCharacters[name]; ok {
			return string(r), nil
		}
		return "", &SyntaxError{Pos: start, Msg: "unknown named character \\[" + name + "]"}
	}
	if c >= '0' && c <= '7' {
		digits := string(c)
		for len(digits) < 3 && lx.pos < len(lx.src) && lx.src[lx.pos] >= '0' && lx.src[lx.pos] <= '7' {
			digits += string(lx.src[lx.pos])
			lx.pos++
		}
		if len(digits) == 3 {
			v, _ := strconv.ParseUint(digits, 8, 32)
			return string(rune(v)), nil
		}
	}
	return "", &SyntaxError{Pos: start, Msg: "unknown escape sequence \\" + string(c)}
}

func (lx *lexer) readHexEscape(width int, start int) (string, error) {
	if lx.pos+width > len(lx.src) {
		return "", &SyntaxError{Pos: start, Msg: "truncated character escape"}
	}
	v, err := strconv.ParseUint(lx.src[lx.pos:lx.pos+width], 16, 32)
	if err != nil {
		return "", &SyntaxError{Pos: start, Msg: "invalid character escape"}
	}
	lx.pos += width
	return string(rune(v)), nil
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isSymbolStart(r rune) bool { return r == '$' || unicode.IsLetter(r) }

func isSymbolPart(r rune) bool { return isSymbolStart(r) || isDigit(r) || r == '`' }
