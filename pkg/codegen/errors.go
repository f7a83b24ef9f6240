package codegen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xplshn/ledc/pkg/token"
)

// ErrorKind classifies a code generation failure. Every kind is fatal for the compilation unit
type ErrorKind int

const (
	UndefinedSymbol ErrorKind = iota
	RegisterExhausted
	UnsupportedConstruct
	NonConstantGlobalInitializer
	ArgumentCountMismatch
)

var (
	ErrUndefinedSymbol              = errors.New("undefined symbol")
	ErrRegisterExhausted            = errors.New("scratch registers exhausted")
	ErrUnsupportedConstruct         = errors.New("unsupported construct")
	ErrNonConstantGlobalInitializer = errors.New("non-constant global initializer")
	ErrArgumentCountMismatch        = errors.New("argument count mismatch")
)

var kindErrors = [...]error{
	UndefinedSymbol:              ErrUndefinedSymbol,
	RegisterExhausted:            ErrRegisterExhausted,
	UnsupportedConstruct:         ErrUnsupportedConstruct,
	NonConstantGlobalInitializer: ErrNonConstantGlobalInitializer,
	ArgumentCountMismatch:        ErrArgumentCountMismatch,
}

func (k ErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(kindErrors) {
		return kindErrors[k].Error()
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error carries the context a driver needs to report a failure: the symbol, the construct and its position
type Error struct {
	Kind      ErrorKind
	Name      string
	Construct string
	Detail    string
	Tok       token.Token
}

// Message renders the error without its position
func (e *Error) Message() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Name != "" {
		fmt.Fprintf(&sb, " '%s'", e.Name)
	}
	if e.Construct != "" {
		fmt.Fprintf(&sb, " in %s", e.Construct)
	}
	if e.Detail != "" {
		fmt.Fprintf(&sb, ": %s", e.Detail)
	}
	return sb.String()
}

func (e *Error) Error() string {
	if e.Tok.Line > 0 {
		return fmt.Sprintf("%d:%d: %s", e.Tok.Line, e.Tok.Column, e.Message())
	}
	return e.Message()
}

func (e *Error) Unwrap() error { return kindErrors[e.Kind] }

func newError(kind ErrorKind, tok token.Token, name, construct, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Name: name, Construct: construct, Detail: fmt.Sprintf(format, args...), Tok: tok}
}
