package typed

// Symbol is an opaque, comparable value of kind KindSymbol. Two symbols are
// equal only when they come from the same NewSymbol call.
type Symbol struct {
	ref *symbolRef
}

type symbolRef struct {
	description string
}

// NewSymbol returns a new unique symbol.
func NewSymbol(description string) Symbol {
	return Symbol{ref: &symbolRef{description: description}}
}

// Description returns the description given to NewSymbol.
func (s Symbol) Description() string {
	if s.ref == nil {
		return ""
	}
	return s.ref.description
}

func (s Symbol) String() string {
	return "Symbol(" + s.Description() + ")"
}
