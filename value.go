package flotalk

// Kind tags the variant held by a Value.
type Kind byte

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindChar
	KindString
	KindSymbol
	KindSelector
	KindArray
	KindMessage
	KindError
	KindReference
)

// ErrorKind enumerates the first-class error conditions a Value can carry,
// per spec.md sections 4.2 and 7.
type ErrorKind int

const (
	ErrNotASymbol ErrorKind = iota
	ErrNotASelector
	ErrNotAString
	ErrExpectedBlockType
	ErrMessageNotSupported
	ErrImportModuleNotFound
	ErrNotImplemented
	ErrUserError
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNotASymbol:
		return "NotASymbol"
	case ErrNotASelector:
		return "NotASelector"
	case ErrNotAString:
		return "NotAString"
	case ErrExpectedBlockType:
		return "ExpectedBlockType"
	case ErrMessageNotSupported:
		return "MessageNotSupported"
	case ErrImportModuleNotFound:
		return "ImportModuleNotFound"
	case ErrNotImplemented:
		return "NotImplemented"
	case ErrUserError:
		return "UserError"
	default:
		return "Error(?)"
	}
}

// ErrorValue is the payload of a Value of kind KindError.
type ErrorValue struct {
	Kind     ErrorKind
	Selector SelectorID // valid when Kind == ErrMessageNotSupported
	Payload  *Value     // valid when Kind == ErrUserError; the raised Value
	Text     string     // human-readable detail, optional
}

// Reference is a (class, data handle) pair identifying an instance of a
// class registered in the class registry (see class.go).
type Reference struct {
	Class  ClassID
	Handle DataHandle
}

// Message is a selector plus its argument vector, usable both as a Value
// variant (a first-class reified send) and as the payload carried by
// SendMessage instructions (see eval.go).
type Message struct {
	Selector SelectorID
	Args     []Value
}

// Value is the tagged union of every value flotalk can hold, per spec.md
// section 3.2. The zero Value is Nil.
type Value struct {
	Kind Kind

	Bool    bool
	Int     int64
	Float   float64
	Char    rune
	Str     string
	Sym     SymbolID
	Sel     SelectorID
	Arr     []Value
	Msg     *Message
	Err     *ErrorValue
	Ref     Reference
}

// Nil is the canonical Nil value.
var Nil = Value{Kind: KindNil}

// True and False are the canonical boolean values.
var (
	True  = Value{Kind: KindBool, Bool: true}
	False = Value{Kind: KindBool, Bool: false}
)

// NewInt wraps an int64 as a Value.
func NewInt(n int64) Value { return Value{Kind: KindInt, Int: n} }

// NewFloat wraps a float64 as a Value.
func NewFloat(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// NewChar wraps a rune as a Value.
func NewChar(r rune) Value { return Value{Kind: KindChar, Char: r} }

// NewString wraps a Go string as an immutable String value.
func NewString(s string) Value { return Value{Kind: KindString, Str: s} }

// NewSymbolValue wraps a SymbolID as a Value.
func NewSymbolValue(s SymbolID) Value { return Value{Kind: KindSymbol, Sym: s} }

// NewSelectorValue wraps a SelectorID as a Value.
func NewSelectorValue(s SelectorID) Value { return Value{Kind: KindSelector, Sel: s} }

// NewArray wraps an ordered Value sequence as an Array value.
func NewArray(items []Value) Value { return Value{Kind: KindArray, Arr: items} }

// NewMessageValue wraps a reified Message as a Value.
func NewMessageValue(m *Message) Value { return Value{Kind: KindMessage, Msg: m} }

// NewErrorValue wraps an ErrorValue as a Value.
func NewErrorValue(e *ErrorValue) Value { return Value{Kind: KindError, Err: e} }

// NewMessageNotSupported builds the workhorse error: a send whose selector
// was absent from every dispatch table and fallback consulted.
func NewMessageNotSupported(sel SelectorID) Value {
	return NewErrorValue(&ErrorValue{Kind: ErrMessageNotSupported, Selector: sel})
}

// NewUserError wraps a script-raised Value as a UserError.
func NewUserError(payload Value) Value {
	return NewErrorValue(&ErrorValue{Kind: ErrUserError, Payload: &payload})
}

// NewReferenceValue wraps a Reference as a Value.
func NewReferenceValue(ref Reference) Value { return Value{Kind: KindReference, Ref: ref} }

// IsNil reports whether v is the Nil value.
func (v Value) IsNil() bool { return v.Kind == KindNil }

// IsError reports whether v carries an ErrorValue.
func (v Value) IsError() bool { return v.Kind == KindError }

// TryAsString returns the Go string underlying v if v is a String, and ok.
func (v Value) TryAsString() (s string, ok bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// TryAsError returns the ErrorValue underlying v if v is an Error, and ok.
func (v Value) TryAsError() (e *ErrorValue, ok bool) {
	if v.Kind != KindError {
		return nil, false
	}
	return v.Err, true
}

// TryAsReference returns the Reference underlying v if v is a Reference, and ok.
func (v Value) TryAsReference() (r Reference, ok bool) {
	if v.Kind != KindReference {
		return Reference{}, false
	}
	return v.Ref, true
}

// TryAsSelector returns the SelectorID underlying v if v is a Selector, and ok.
func (v Value) TryAsSelector() (id SelectorID, ok bool) {
	if v.Kind != KindSelector {
		return 0, false
	}
	return v.Sel, true
}

// TryAsBool returns the bool underlying v if v is a Bool, and ok.
func (v Value) TryAsBool() (b bool, ok bool) {
	if v.Kind != KindBool {
		return false, false
	}
	return v.Bool, true
}

// BoolValue converts a Go bool to the canonical True or False Value.
func BoolValue(b bool) Value {
	if b {
		return True
	}
	return False
}

// Equal reports structural equality for primitive kinds and identity
// equality (same class and data handle) for references, per spec.md
// section 4.2.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNil:
		return true
	case KindBool:
		return v.Bool == other.Bool
	case KindInt:
		return v.Int == other.Int
	case KindFloat:
		return v.Float == other.Float
	case KindChar:
		return v.Char == other.Char
	case KindString:
		return v.Str == other.Str
	case KindSymbol:
		return v.Sym == other.Sym
	case KindSelector:
		return v.Sel == other.Sel
	case KindReference:
		return v.Ref == other.Ref
	case KindArray:
		if len(v.Arr) != len(other.Arr) {
			return false
		}
		for i := range v.Arr {
			if !v.Arr[i].Equal(other.Arr[i]) {
				return false
			}
		}
		return true
	case KindMessage:
		if v.Msg == nil || other.Msg == nil {
			return v.Msg == other.Msg
		}
		if v.Msg.Selector != other.Msg.Selector || len(v.Msg.Args) != len(other.Msg.Args) {
			return false
		}
		for i := range v.Msg.Args {
			if !v.Msg.Args[i].Equal(other.Msg.Args[i]) {
				return false
			}
		}
		return true
	case KindError:
		return v.Err == other.Err
	default:
		return false
	}
}

// Take moves ownership out of v, leaving Nil behind, per spec.md section
// 4.2. It is the caller's responsibility to use the returned Value exactly
// as the original owning slot would have.
func (v *Value) Take() Value {
	out := *v
	*v = Nil
	return out
}
