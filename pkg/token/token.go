package token

type Type int

const (
	EOF Type = iota
	Ident
	Number
	Bool

	// Operators
	Plus
	Minus
	Star
	Slash
	Rem
	And
	Or
	Xor
	Shl
	Shr
	EqEq
	Neq
	Lt
	Gt
	Gte
	Lte
	AndAnd
	OrOr
	Not
	Complement
	Eq
)

// OperatorMap maps the spelling used by the parser's program dump to an operator type
var OperatorMap = map[string]Type{
	"+":  Plus,
	"-":  Minus,
	"*":  Star,
	"/":  Slash,
	"%":  Rem,
	"&":  And,
	"|":  Or,
	"^":  Xor,
	"<<": Shl,
	">>": Shr,
	"==": EqEq,
	"!=": Neq,
	"<":  Lt,
	">":  Gt,
	">=": Gte,
	"<=": Lte,
	"&&": AndAnd,
	"||": OrOr,
	"!":  Not,
	"~":  Complement,
	"=":  Eq,
}

// Reverse mapping from Type to the operator spelling
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range OperatorMap {
		TypeStrings[typ] = str
	}
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	switch t {
	case EOF:
		return "EOF"
	case Ident:
		return "identifier"
	case Number:
		return "number"
	case Bool:
		return "bool"
	}
	return "unknown"
}

// IsComparison reports whether the operator yields a 0/1 truth value from two operands
func (t Type) IsComparison() bool {
	switch t {
	case EqEq, Neq, Lt, Gt, Gte, Lte:
		return true
	}
	return false
}

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Len       int
}
