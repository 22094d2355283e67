package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// TokenType enumerates lexical token kinds. Closing delimiters ("]" and ">>")
// are reported as keywords.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenName
	TokenString
	TokenNumber
	TokenBoolean
	TokenNull
	TokenKeyword
	TokenArray // "["
	TokenDict  // "<<"
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "eof"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenBoolean:
		return "boolean"
	case TokenNull:
		return "null"
	case TokenKeyword:
		return "keyword"
	case TokenArray:
		return "array"
	case TokenDict:
		return "dict"
	}
	return "unknown"
}

// Token is a single lexical unit.
type Token struct {
	Type  TokenType
	Str   string // name value or keyword
	Bytes []byte // string contents
	Hex   bool   // string was written in hex form
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Pos   int64
}

// Number returns the numeric value of a number token.
func (t Token) Number() float64 {
	if t.IsInt {
		return float64(t.Int)
	}
	return t.Float
}

// IsKeyword reports whether t is the keyword kw.
func (t Token) IsKeyword(kw string) bool { return t.Type == TokenKeyword && t.Str == kw }

var (
	// ErrUnexpectedEOF is returned when input ends inside a token.
	ErrUnexpectedEOF = errors.New("scanner: unexpected end of input")
	// ErrStringTooLong is returned when a string exceeds Config.MaxStringLength.
	ErrStringTooLong = errors.New("scanner: string exceeds limit")
)

// Config bounds the scanner.
type Config struct {
	MaxStringLength int
}

func DefaultConfig() Config { return Config{MaxStringLength: 10 << 20} }

// Scanner tokenizes PDF syntax held in memory.
type Scanner struct {
	data []byte
	pos  int
	cfg  Config
}

func New(data []byte, cfg Config) *Scanner {
	if cfg.MaxStringLength <= 0 {
		cfg.MaxStringLength = DefaultConfig().MaxStringLength
	}
	return &Scanner{data: data, cfg: cfg}
}

func (s *Scanner) Position() int64 { return int64(s.pos) }

func (s *Scanner) Seek(off int64) error {
	if off < 0 || off > int64(len(s.data)) {
		return fmt.Errorf("scanner: seek %d out of range", off)
	}
	s.pos = int(off)
	return nil
}

// Data exposes the underlying buffer.
func (s *Scanner) Data() []byte { return s.data }

func IsWhitespace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func IsDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (s *Scanner) skipSpace() {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if IsWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
			continue
		}
		return
	}
}

// Next returns the next token, or a TokenEOF token at end of input.
func (s *Scanner) Next() (Token, error) {
	s.skipSpace()
	start := int64(s.pos)
	if s.pos >= len(s.data) {
		return Token{Type: TokenEOF, Pos: start}, nil
	}
	c := s.data[s.pos]
	switch c {
	case '/':
		s.pos++
		return Token{Type: TokenName, Str: s.readName(), Pos: start}, nil
	case '(':
		b, err := s.readLiteral()
		if err != nil {
			return Token{}, err
		}
		return Token{Type: TokenString, Bytes: b, Pos: start}, nil
	case '<':
		if s.pos+1 < len(s.data) && s.data[s.pos+1] == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Pos: start}, nil
		}
		b, err := s.readHex()
		if err != nil {
			return Token{}, err
		}
		return Token{Type: TokenString, Bytes: b, Hex: true, Pos: start}, nil
	case '>':
		if s.pos+1 < len(s.data) && s.data[s.pos+1] == '>' {
			s.pos += 2
			return Token{Type: TokenKeyword, Str: ">>", Pos: start}, nil
		}
		s.pos++
		return Token{}, fmt.Errorf("scanner: stray '>' at %d", start)
	case '[':
		s.pos++
		return Token{Type: TokenArray, Pos: start}, nil
	case ']', '{', '}':
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	case ')':
		s.pos++
		return Token{}, fmt.Errorf("scanner: stray ')' at %d", start)
	}
	word := s.readRegular()
	return classify(word, start), nil
}

func (s *Scanner) readRegular() string {
	start := s.pos
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if IsWhitespace(c) || IsDelimiter(c) {
			break
		}
		s.pos++
	}
	return string(s.data[start:s.pos])
}

func classify(word string, pos int64) Token {
	switch word {
	case "true":
		return Token{Type: TokenBoolean, Bool: true, Pos: pos}
	case "false":
		return Token{Type: TokenBoolean, Bool: false, Pos: pos}
	case "null":
		return Token{Type: TokenNull, Pos: pos}
	}
	if looksNumeric(word) {
		if i, err := strconv.ParseInt(word, 10, 64); err == nil {
			return Token{Type: TokenNumber, Int: i, IsInt: true, Pos: pos}
		}
		if f, err := strconv.ParseFloat(word, 64); err == nil {
			return Token{Type: TokenNumber, Float: f, Pos: pos}
		}
		// Producers occasionally write "--5" or "5-"; keep the numeric part.
		if f, ok := lenientFloat(word); ok {
			return Token{Type: TokenNumber, Float: f, Pos: pos}
		}
	}
	return Token{Type: TokenKeyword, Str: word, Pos: pos}
}

func looksNumeric(w string) bool {
	if w == "" {
		return false
	}
	digit := false
	for i := 0; i < len(w); i++ {
		c := w[i]
		switch {
		case c >= '0' && c <= '9':
			digit = true
		case c == '+' || c == '-' || c == '.':
		default:
			return false
		}
	}
	return digit
}

func lenientFloat(w string) (float64, bool) {
	neg := false
	i := 0
	for i < len(w) && (w[i] == '-' || w[i] == '+') {
		if w[i] == '-' {
			neg = !neg
		}
		i++
	}
	j := i
	for j < len(w) && (w[j] == '.' || (w[j] >= '0' && w[j] <= '9')) {
		j++
	}
	f, err := strconv.ParseFloat(w[i:j], 64)
	if err != nil {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}

func (s *Scanner) readName() string {
	raw := s.readRegular()
	if !strings.ContainsRune(raw, '#') {
		return raw
	}
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] == '#' && i+2 < len(raw) {
			if v, err := strconv.ParseUint(raw[i+1:i+3], 16, 8); err == nil {
				out = append(out, byte(v))
				i += 2
				continue
			}
		}
		out = append(out, raw[i])
	}
	return string(out)
}

func (s *Scanner) readLiteral() ([]byte, error) {
	s.pos++ // (
	depth := 1
	var out []byte
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= len(s.data) {
				return nil, ErrUnexpectedEOF
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if s.pos < len(s.data) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '7'; i++ {
						v = v*8 + int(s.data[s.pos]-'0')
						s.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out, nil
			}
			out = append(out, c)
		case '\r':
			if s.pos < len(s.data) && s.data[s.pos] == '\n' {
				s.pos++
			}
			out = append(out, '\n')
		default:
			out = append(out, c)
		}
		if len(out) > s.cfg.MaxStringLength {
			return nil, ErrStringTooLong
		}
	}
	return nil, ErrUnexpectedEOF
}

func (s *Scanner) readHex() ([]byte, error) {
	s.pos++ // <
	var out []byte
	var hi byte
	half := false
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if half {
				out = append(out, hi<<4)
			}
			return out, nil
		}
		v, ok := hexVal(c)
		if !ok {
			continue
		}
		if half {
			out = append(out, hi<<4|v)
			half = false
		} else {
			hi = v
			half = true
		}
		if len(out) > s.cfg.MaxStringLength {
			return nil, ErrStringTooLong
		}
	}
	return nil, ErrUnexpectedEOF
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

var endstream = []byte("endstream")

// ReadStream returns the stream body following a "stream" keyword that was
// just consumed. length is the declared /Length, or -1 when unknown. When the
// declared length does not land on "endstream" the body is located by search.
func (s *Scanner) ReadStream(length int) ([]byte, error) {
	if s.pos < len(s.data) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < len(s.data) && s.data[s.pos] == '\n' {
		s.pos++
	}
	start := s.pos
	if length >= 0 && start+length <= len(s.data) {
		end := start + length
		p := end
		for p < len(s.data) && IsWhitespace(s.data[p]) {
			p++
		}
		if bytes.HasPrefix(s.data[p:], endstream) {
			s.pos = p + len(endstream)
			return s.data[start:end], nil
		}
	}
	idx := bytes.Index(s.data[start:], endstream)
	if idx < 0 {
		return nil, fmt.Errorf("%w: endstream not found after %d", ErrUnexpectedEOF, start)
	}
	end := start + idx
	if end > start && s.data[end-1] == '\n' {
		end--
	}
	if end > start && s.data[end-1] == '\r' {
		end--
	}
	s.pos = start + idx + len(endstream)
	return s.data[start:end], nil
}

// ReadInlineImage returns the data between an "ID" keyword that was just
// consumed and the matching "EI", leaving the scanner after "EI".
func (s *Scanner) ReadInlineImage() ([]byte, error) {
	if s.pos < len(s.data) && IsWhitespace(s.data[s.pos]) {
		s.pos++
	}
	start := s.pos
	for i := start; i+1 < len(s.data); i++ {
		if s.data[i] != 'E' || s.data[i+1] != 'I' {
			continue
		}
		if i > start && !IsWhitespace(s.data[i-1]) {
			continue
		}
		if i+2 < len(s.data) && !IsWhitespace(s.data[i+2]) && !IsDelimiter(s.data[i+2]) {
			continue
		}
		end := i
		if end > start && IsWhitespace(s.data[end-1]) {
			end--
		}
		s.pos = i + 2
		return s.data[start:end], nil
	}
	return nil, fmt.Errorf("%w: EI not found after %d", ErrUnexpectedEOF, start)
}
