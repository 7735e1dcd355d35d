package flotalk

// OpCode identifies one flat evaluator instruction, per spec.md section 4.7.
// The evaluator never sees source text: a SourceCompiler (see
// stdlib_evaluate.go) or a test's instruction builder produces these
// directly.
type OpCode byte

const (
	OpLoadNil OpCode = iota
	OpLoad
	OpLoadFromSymbol
	OpStoreAtSymbol
	OpDuplicate
	OpDiscard
	OpPushLocalBinding
	OpPopLocalBinding
	OpSendMessage
	OpLoadBlock
	OpLocation
)

// BlockTemplate is the compile-time description of a block literal: the
// value/value:/value:value:... selector it will respond to (its arity is
// len(ParamNames)), the names its parameters bind in the block's own frame,
// and its body.
type BlockTemplate struct {
	Selector   SelectorID
	ParamNames []SymbolID
	Body       []Instruction
}

// Instruction is one flat evaluator step. Only the fields relevant to Op are
// meaningful; the rest are zero.
type Instruction struct {
	Op       OpCode
	Literal  Value
	Symbol   SymbolID
	Selector SelectorID
	Block    *BlockTemplate
	Loc      string
}

// Evaluator runs a flat instruction list against a value stack and a chain
// of captured cell-block frames, per spec.md section 4.7. A fresh Evaluator
// is created for a top-level script body and for every block invocation; its
// frames[0] is always the innermost (its own) frame.
type Evaluator struct {
	instructions []Instruction
	ip           int
	stack        []Value
	symtab       *SymbolTable
	frames       []BlockID
}

// NewEvaluator creates an Evaluator over instructions, with symtab as the
// innermost symbol table and frames as the corresponding cell-block vector
// (frames[0] backs symtab itself).
func NewEvaluator(instructions []Instruction, symtab *SymbolTable, frames []BlockID) *Evaluator {
	return &Evaluator{instructions: instructions, symtab: symtab, frames: frames}
}

func (e *Evaluator) push(v Value)  { e.stack = append(e.stack, v) }
func (e *Evaluator) peek() Value   { return e.stack[len(e.stack)-1] }
func (e *Evaluator) pop() Value {
	v := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return v
}

func (e *Evaluator) cellFor(depth, index int) Cell {
	return Cell{Block: e.frames[depth], Index: index}
}

// Run executes instructions starting at the current instruction pointer. A
// SendMessage that resolves immediately is folded into the same loop; one
// that returns Soon or Later instead causes Run to suspend by returning a
// chained Continuation that, once the inner send resolves, pushes its result
// and resumes the very same loop — this chaining *is* the evaluator's saved
// continuation, per spec.md section 9, rather than a separately serialized
// program counter.
func (e *Evaluator) Run(ctx *Context) Continuation {
	for e.ip < len(e.instructions) {
		instr := e.instructions[e.ip]
		e.ip++

		switch instr.Op {
		case OpLoadNil:
			e.push(Nil)

		case OpLoad:
			e.push(instr.Literal)

		case OpLoadFromSymbol:
			depth, idx, ok := e.symtab.Lookup(instr.Symbol)
			if !ok {
				e.push(NewErrorValue(&ErrorValue{Kind: ErrNotASymbol, Text: SymbolName(instr.Symbol)}))
				break
			}
			v := ctx.Heap.CellValue(e.cellFor(depth, idx))
			e.push(ctx.CloneValueInContext(v))

		case OpStoreAtSymbol:
			v := e.pop()
			depth, idx, ok := e.symtab.Lookup(instr.Symbol)
			if !ok {
				depth, idx = 0, e.defineLocal(ctx, instr.Symbol)
			}
			cell := e.cellFor(depth, idx)
			old := ctx.Heap.CellValue(cell)
			ctx.ReleaseValue(old)
			ctx.Heap.SetCellValue(cell, v)

		case OpDuplicate:
			e.push(ctx.CloneValueInContext(e.peek()))

		case OpDiscard:
			ctx.ReleaseValue(e.pop())

		case OpPushLocalBinding:
			e.defineLocal(ctx, instr.Symbol)

		case OpPopLocalBinding:
			if idx, ok := e.symtab.localIndex(instr.Symbol); ok {
				cell := e.cellFor(0, idx)
				ctx.ReleaseValue(ctx.Heap.CellValue(cell))
				ctx.Heap.SetCellValue(cell, Nil)
			}
			e.symtab.Undefine(instr.Symbol)

		case OpSendMessage:
			arity := SelectorArity(instr.Selector)
			args := make([]Value, arity)
			for i := arity - 1; i >= 0; i-- {
				args[i] = e.pop()
			}
			receiver := e.pop()
			c := Send(ctx, receiver, instr.Selector, args)
			if v, ok := c.ReadyValue(); ok {
				e.push(v)
				continue
			}
			return c.AndThen(func(v Value) Continuation {
				e.push(v)
				return e.Run(ctx)
			})

		case OpLoadBlock:
			e.push(e.makeBlock(ctx, instr.Block))

		case OpLocation:
			// Carries source-location metadata only; no runtime effect.
		}
	}

	if len(e.stack) == 0 {
		return Ready(Nil)
	}
	return Ready(e.pop())
}

// defineLocal reserves a new slot for sym in the evaluator's own (frame 0)
// symbol table, growing the backing cell block to fit.
func (e *Evaluator) defineLocal(ctx *Context, sym SymbolID) int {
	idx := e.symtab.Define(sym)
	if n := ctx.Heap.Len(e.frames[0]); idx >= n {
		ctx.Heap.Resize(ctx, e.frames[0], idx+1)
	}
	return idx
}

// makeBlock captures the evaluator's current symbol table and frame vector
// into a Block value, retaining every captured cell block so the block
// outlives the call that created it, per spec.md section 3.7.
func (e *Evaluator) makeBlock(ctx *Context, tmpl *BlockTemplate) Value {
	captured := make([]BlockID, len(e.frames))
	copy(captured, e.frames)
	for _, b := range captured {
		ctx.Heap.Retain(b)
	}
	return NewBlockValue(ctx, tmpl, e.symtab, captured)
}
