package parser

import "fmt"

// SyntaxError reports input that could not be parsed. Incomplete is set when
// the input ended before an expression was finished, so more lines may
// complete it.
type SyntaxError struct {
	Pos        int
	Msg        string
	Incomplete bool
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Msg)
}

// Tag returns the message tag used when the error is reported to users.
func (e *SyntaxError) Tag() string {
	if e.Incomplete {
		return "sntxi"
	}
	return "sntxf"
}
