package flotalk

import "math"

// installIntPrimitives registers the arithmetic, comparison, and equality
// selectors Int responds to directly (no heap allocation), grounded on
// iolang's table-driven Number slot registration (number.go's initNumber)
// but keyed by SelectorID per spec.md section 4.6.
func installIntPrimitives(ctx *Context) {
	installNumericCommon(ctx.PrimitiveDispatch(KindInt))
}

// installFloatPrimitives mirrors installIntPrimitives for the Float kind.
func installFloatPrimitives(ctx *Context) {
	installNumericCommon(ctx.PrimitiveDispatch(KindFloat))
}

// installNumericCommon installs the selectors shared by Int and Float: the
// receiver's own Kind only matters for whether "+"/"-"/"*" stay exact
// (Int#Int) or promote to Float (anything involving a Float operand).
func installNumericCommon(t *PrimitiveTable) {
	install := func(name string, fn func(self Value, args []Value) Value) {
		t.Install(InternSelector(Intern(name)), func(ctx *Context, self Value, sel SelectorID, args []Value) Continuation {
			return Ready(fn(self, args))
		})
	}

	install("+", func(self Value, args []Value) Value {
		return numericOp(self, args, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
	})
	install("-", func(self Value, args []Value) Value {
		return numericOp(self, args, func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
	})
	install("*", func(self Value, args []Value) Value {
		return numericOp(self, args, func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })
	})
	install("/", func(self Value, args []Value) Value {
		return numericFloatOp(self, args, func(a, b float64) float64 { return a / b })
	})
	install("//", floorDivOp)
	install("<", func(self Value, args []Value) Value {
		return numericCompare(self, args, func(c int) bool { return c < 0 })
	})
	install(">", func(self Value, args []Value) Value {
		return numericCompare(self, args, func(c int) bool { return c > 0 })
	})
	install("<=", func(self Value, args []Value) Value {
		return numericCompare(self, args, func(c int) bool { return c <= 0 })
	})
	install(">=", func(self Value, args []Value) Value {
		return numericCompare(self, args, func(c int) bool { return c >= 0 })
	})
	install("=", func(self Value, args []Value) Value {
		if len(args) != 1 {
			return NewMessageNotSupported(0)
		}
		return BoolValue(self.Equal(args[0]))
	})
}

// asFloat widens an Int or Float Value to a float64, the second return value
// reporting whether v was numeric at all.
func asFloat(v Value) (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

// numericOp implements a dyadic arithmetic selector: Int#Int stays Int,
// anything involving a Float promotes to Float, matching flotalk's Smalltalk
// ancestry where "38 + 4" is exact but mixed arithmetic is not.
func numericOp(self Value, args []Value, intFn func(a, b int64) int64, floatFn func(a, b float64) float64) Value {
	if len(args) != 1 {
		return NewMessageNotSupported(0)
	}
	other := args[0]
	if self.Kind == KindInt && other.Kind == KindInt {
		return NewInt(intFn(self.Int, other.Int))
	}
	a, ok1 := asFloat(self)
	b, ok2 := asFloat(other)
	if !ok1 || !ok2 {
		return NewErrorValue(&ErrorValue{Kind: ErrNotImplemented, Text: "arithmetic on non-numeric operand"})
	}
	return NewFloat(floatFn(a, b))
}

// numericFloatOp is like numericOp but always produces a Float, used for
// true division ("/").
func numericFloatOp(self Value, args []Value, floatFn func(a, b float64) float64) Value {
	if len(args) != 1 {
		return NewMessageNotSupported(0)
	}
	a, ok1 := asFloat(self)
	b, ok2 := asFloat(args[0])
	if !ok1 || !ok2 {
		return NewErrorValue(&ErrorValue{Kind: ErrNotImplemented, Text: "arithmetic on non-numeric operand"})
	}
	return NewFloat(floatFn(a, b))
}

// floorDivOp implements "//": floor division that always answers an Int,
// per spec.md scenario S2 (`1021.2 // 24.2` => Int(42)).
func floorDivOp(self Value, args []Value) Value {
	if len(args) != 1 {
		return NewMessageNotSupported(0)
	}
	a, ok1 := asFloat(self)
	b, ok2 := asFloat(args[0])
	if !ok1 || !ok2 {
		return NewErrorValue(&ErrorValue{Kind: ErrNotImplemented, Text: "arithmetic on non-numeric operand"})
	}
	return NewInt(int64(math.Floor(a / b)))
}

// numericCompare implements a relational selector via three-way comparison.
func numericCompare(self Value, args []Value, test func(cmp int) bool) Value {
	if len(args) != 1 {
		return NewMessageNotSupported(0)
	}
	a, ok1 := asFloat(self)
	b, ok2 := asFloat(args[0])
	if !ok1 || !ok2 {
		return NewErrorValue(&ErrorValue{Kind: ErrNotImplemented, Text: "comparison on non-numeric operand"})
	}
	switch {
	case a < b:
		return BoolValue(test(-1))
	case a > b:
		return BoolValue(test(1))
	default:
		return BoolValue(test(0))
	}
}

// installBoolPrimitives wires the Boolean control-flow and logic selectors.
func installBoolPrimitives(ctx *Context) {
	t := ctx.PrimitiveDispatch(KindBool)
	install := func(name string, fn func(ctx *Context, self Value, args []Value) Continuation) {
		t.Install(InternSelector(Intern(name)), func(ctx *Context, self Value, sel SelectorID, args []Value) Continuation {
			return fn(ctx, self, args)
		})
	}

	install("&", func(ctx *Context, self Value, args []Value) Continuation {
		if len(args) != 1 {
			return Ready(NewMessageNotSupported(0))
		}
		b, ok := args[0].TryAsBool()
		if !ok {
			return Ready(NewErrorValue(&ErrorValue{Kind: ErrNotImplemented}))
		}
		return Ready(BoolValue(self.Bool && b))
	})
	install("|", func(ctx *Context, self Value, args []Value) Continuation {
		if len(args) != 1 {
			return Ready(NewMessageNotSupported(0))
		}
		b, ok := args[0].TryAsBool()
		if !ok {
			return Ready(NewErrorValue(&ErrorValue{Kind: ErrNotImplemented}))
		}
		return Ready(BoolValue(self.Bool || b))
	})
	install("not", func(ctx *Context, self Value, args []Value) Continuation {
		return Ready(BoolValue(!self.Bool))
	})
	t.Install(InternKeywordSelector("ifTrue:", "ifFalse:"), func(ctx *Context, self Value, sel SelectorID, args []Value) Continuation {
		if len(args) != 2 {
			return Ready(NewMessageNotSupported(sel))
		}
		branch := args[1]
		if self.Bool {
			branch = args[0]
		}
		return sendValueUnary(ctx, branch)
	})
	t.Install(InternKeywordSelector("ifTrue:"), func(ctx *Context, self Value, sel SelectorID, args []Value) Continuation {
		if len(args) != 1 {
			return Ready(NewMessageNotSupported(sel))
		}
		if !self.Bool {
			return Ready(Nil)
		}
		return sendValueUnary(ctx, args[0])
	})
	t.Install(InternKeywordSelector("ifFalse:"), func(ctx *Context, self Value, sel SelectorID, args []Value) Continuation {
		if len(args) != 1 {
			return Ready(NewMessageNotSupported(sel))
		}
		if self.Bool {
			return Ready(Nil)
		}
		return sendValueUnary(ctx, args[0])
	})
}

// sendValueUnary sends the "value" unary selector to v if v is a Block,
// evaluating it; otherwise it answers v itself, so ifTrue:/ifFalse: also
// accept a plain Value rather than requiring a block literal.
func sendValueUnary(ctx *Context, v Value) Continuation {
	if ref, ok := v.TryAsReference(); ok && ref.Class == blockClassID {
		return Send(ctx, v, blockValueSelectors[0], nil)
	}
	return Ready(v)
}

// installStringPrimitives wires the small set of String operations the
// standard classes and tests rely on: concatenation, length, and equality.
func installStringPrimitives(ctx *Context) {
	t := ctx.PrimitiveDispatch(KindString)
	t.Install(InternSelector(Intern(",")), func(ctx *Context, self Value, sel SelectorID, args []Value) Continuation {
		if len(args) != 1 {
			return Ready(NewMessageNotSupported(sel))
		}
		other, ok := args[0].TryAsString()
		if !ok {
			return Ready(NewErrorValue(&ErrorValue{Kind: ErrNotAString}))
		}
		return Ready(NewString(self.Str + other))
	})
	t.Install(InternUnarySelector("size"), func(ctx *Context, self Value, sel SelectorID, args []Value) Continuation {
		return Ready(NewInt(int64(len([]rune(self.Str)))))
	})
	t.Install(InternSelector(Intern("=")), func(ctx *Context, self Value, sel SelectorID, args []Value) Continuation {
		if len(args) != 1 {
			return Ready(NewMessageNotSupported(sel))
		}
		return Ready(BoolValue(self.Equal(args[0])))
	})
}

// installArrayPrimitives wires the small set of Array operations used by
// the standard classes and tests: size and 1-based indexed access.
func installArrayPrimitives(ctx *Context) {
	t := ctx.PrimitiveDispatch(KindArray)
	t.Install(InternUnarySelector("size"), func(ctx *Context, self Value, sel SelectorID, args []Value) Continuation {
		return Ready(NewInt(int64(len(self.Arr))))
	})
	t.Install(InternKeywordSelector("at:"), func(ctx *Context, self Value, sel SelectorID, args []Value) Continuation {
		if len(args) != 1 || args[0].Kind != KindInt {
			return Ready(NewErrorValue(&ErrorValue{Kind: ErrNotImplemented}))
		}
		i := args[0].Int
		if i < 1 || int(i) > len(self.Arr) {
			return Ready(NewErrorValue(&ErrorValue{Kind: ErrNotImplemented, Text: "index out of range"}))
		}
		return Ready(ctx.CloneValueInContext(self.Arr[i-1]))
	})
}

// installStandardPrimitives wires every primitive-kind dispatch table this
// repository implements.
func installStandardPrimitives(ctx *Context) {
	installIntPrimitives(ctx)
	installFloatPrimitives(ctx)
	installBoolPrimitives(ctx)
	installStringPrimitives(ctx)
	installArrayPrimitives(ctx)
}
