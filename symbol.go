package flotalk

import (
	"strings"
	"sync"
	"sync/atomic"
)

// SymbolID is a compact integer identifier for an interned name.
type SymbolID int32

// SelectorKind classifies a selector by its surface shape.
type SelectorKind int

const (
	// UnarySelector takes no arguments, e.g. "size".
	UnarySelector SelectorKind = iota
	// BinarySelector is an operator message, e.g. "+".
	BinarySelector
	// KeywordSelector is one or more "name:" segments, e.g. "at:put:".
	KeywordSelector
)

// binaryChars is the fixed set of characters that may start a binary
// selector, per spec.md section 3.1.
const binaryChars = "+-*/~<>=@%|&?,"

// interner maps interned names to small integer IDs. It is append-only and
// safe for concurrent use; once a name is interned it keeps the same ID for
// the life of the process.
type interner struct {
	mu    sync.RWMutex
	ids   map[string]SymbolID
	names []string
}

func newInterner() *interner {
	return &interner{ids: make(map[string]SymbolID, 64)}
}

func (in *interner) intern(name string) SymbolID {
	in.mu.RLock()
	if id, ok := in.ids[name]; ok {
		in.mu.RUnlock()
		return id
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.ids[name]; ok {
		return id
	}
	id := SymbolID(len(in.names))
	in.names = append(in.names, name)
	in.ids[name] = id
	return id
}

func (in *interner) name(id SymbolID) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(id) < 0 || int(id) >= len(in.names) {
		return ""
	}
	return in.names[id]
}

// globalSymbols is the process-wide symbol interner. It is a package-level
// singleton because symbol identity must be stable and comparable across
// every Context in the process, per spec.md section 9.
var globalSymbols = newInterner()

// unnamedCounter generates the numeric suffix for compiler-generated
// temporaries. It must be accessed atomically.
var unnamedCounter int64

// Intern returns the Symbol for name, interning it if this is the first time
// it has been seen.
func Intern(name string) SymbolID {
	return globalSymbols.intern(name)
}

// SymbolName returns the interned string for a Symbol.
func SymbolName(id SymbolID) string {
	return globalSymbols.name(id)
}

// NewUnnamedSymbol creates a Symbol for a compiler-generated temporary, such
// as the receiver binding synthesized for a cascade. Its printed name
// deliberately includes spaces so that it can never collide with a name
// written in source text.
func NewUnnamedSymbol() SymbolID {
	n := atomic.AddInt64(&unnamedCounter, 1)
	return Intern(" <UNNAMED#" + itoa(n) + "> ")
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// IsKeywordName reports whether name ends with a colon, marking it as one
// segment of a keyword selector.
func IsKeywordName(name string) bool {
	return len(name) > 0 && name[len(name)-1] == ':'
}

// IsBinaryName reports whether name starts with an operator character from
// the fixed binary-selector character set.
func IsBinaryName(name string) bool {
	return len(name) > 0 && strings.IndexByte(binaryChars, name[0]) >= 0
}

// KeywordToSymbol strips a trailing colon from name, if present, and interns
// the result.
func KeywordToSymbol(name string) SymbolID {
	if IsKeywordName(name) {
		name = name[:len(name)-1]
	}
	return Intern(name)
}

// classifyName returns the SelectorKind for a single message-name segment.
func classifyName(name string) SelectorKind {
	switch {
	case IsKeywordName(name):
		return KeywordSelector
	case IsBinaryName(name):
		return BinarySelector
	default:
		return UnarySelector
	}
}

// SelectorID is a compact integer identifier for an interned selector: an
// ordered, non-empty list of symbols forming a message name.
type SelectorID int32

// selectorInfo holds the arity and kind derived from a selector's symbols,
// plus the symbols themselves for diagnostics.
type selectorInfo struct {
	symbols []SymbolID
	kind    SelectorKind
	arity   int
}

// selectorTable interns ordered symbol lists as selector IDs.
type selectorTable struct {
	mu   sync.RWMutex
	ids  map[string]SelectorID
	info []selectorInfo
}

func newSelectorTable() *selectorTable {
	return &selectorTable{ids: make(map[string]SelectorID, 64)}
}

// selectorKey builds a map key from an ordered symbol list. NUL cannot
// appear in an interned name (names come from source identifiers or
// synthesized unnamed symbols, neither of which contain it), so it is safe
// as a join separator that can never be confused with a real boundary.
func selectorKey(symbols []SymbolID) string {
	var b strings.Builder
	for i, s := range symbols {
		if i > 0 {
			b.WriteByte(0)
		}
		b.WriteString(SymbolName(s))
	}
	return b.String()
}

func (t *selectorTable) intern(symbols []SymbolID) SelectorID {
	key := selectorKey(symbols)
	t.mu.RLock()
	if id, ok := t.ids[key]; ok {
		t.mu.RUnlock()
		return id
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.ids[key]; ok {
		return id
	}
	kind := UnarySelector
	arity := 0
	if len(symbols) > 0 {
		name := SymbolName(symbols[0])
		kind = classifyName(name)
		switch kind {
		case UnarySelector:
			arity = 0
		case BinarySelector:
			arity = 1
		case KeywordSelector:
			arity = len(symbols)
		}
	}
	cp := make([]SymbolID, len(symbols))
	copy(cp, symbols)
	id := SelectorID(len(t.info))
	t.info = append(t.info, selectorInfo{symbols: cp, kind: kind, arity: arity})
	t.ids[key] = id
	return id
}

func (t *selectorTable) get(id SelectorID) (selectorInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) < 0 || int(id) >= len(t.info) {
		return selectorInfo{}, false
	}
	return t.info[id], true
}

var globalSelectors = newSelectorTable()

// InternSelector interns an ordered, non-empty list of symbols as a
// selector, deriving its arity and kind from the first symbol's shape.
func InternSelector(symbols ...SymbolID) SelectorID {
	return globalSelectors.intern(symbols)
}

// InternUnarySelector interns a single-symbol unary selector by name, e.g.
// "size".
func InternUnarySelector(name string) SelectorID {
	return InternSelector(Intern(name))
}

// InternKeywordSelector interns a keyword selector from its colon-joined
// segments, e.g. InternKeywordSelector("at:", "put:") for "at:put:".
func InternKeywordSelector(segments ...string) SelectorID {
	symbols := make([]SymbolID, len(segments))
	for i, seg := range segments {
		symbols[i] = Intern(seg)
	}
	return InternSelector(symbols...)
}

// SelectorArity returns the number of arguments a selector expects: 0 for
// unary, 1 for binary, or the segment count for keyword selectors.
func SelectorArity(id SelectorID) int {
	info, ok := globalSelectors.get(id)
	if !ok {
		return 0
	}
	return info.arity
}

// SelectorKindOf returns the shape of a selector.
func SelectorKindOf(id SelectorID) SelectorKind {
	info, ok := globalSelectors.get(id)
	if !ok {
		return UnarySelector
	}
	return info.kind
}

// SelectorSymbols returns the ordered symbols backing a selector, e.g. the
// two keyword-name symbols backing "at:put:". Used by the script-class
// machinery to turn a keyword selector argument into instance variable
// names (see scriptclass.go).
func SelectorSymbols(id SelectorID) []SymbolID {
	info, ok := globalSelectors.get(id)
	if !ok {
		return nil
	}
	out := make([]SymbolID, len(info.symbols))
	copy(out, info.symbols)
	return out
}

// SelectorName reconstructs the printable name of a selector, e.g.
// "at:put:" for a two-segment keyword selector.
func SelectorName(id SelectorID) string {
	info, ok := globalSelectors.get(id)
	if !ok {
		return "?"
	}
	switch info.kind {
	case KeywordSelector:
		var b strings.Builder
		for _, s := range info.symbols {
			name := SymbolName(s)
			b.WriteString(name)
			if !IsKeywordName(name) {
				b.WriteByte(':')
			}
		}
		return b.String()
	default:
		if len(info.symbols) == 0 {
			return "?"
		}
		return SymbolName(info.symbols[0])
	}
}
