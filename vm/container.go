// Package vm implements the stack-machine executor and the VM container
// of §4.6-§5: three fixed-maxima stacks (operand, control, call) driven
// over a validated wasm.Module by one switch on the opcode.
// Grounded on wagon's exec.VM (operand/frame/call stacks, funcTable
// dispatch) generalized from that package's single-engine model to the
// spec's explicit container lifecycle (Open/Close/Attach/Detach)
// (_examples/other_examples/dccad4d8_go-interpreter-wagon__exec-vm.go.go).
package vm

import (
	"github.com/tetratelabs/warpwasm/api"
	"github.com/tetratelabs/warpwasm/wasm"
)

// Allocator is the host-supplied memory surface §6 calls out as "not
// specified here": two methods rather than a registry, so surrounding
// code (CLI, file loader, host-function bridge) can be built
// independently of this package.
type Allocator interface {
	Alloc(size, align int) []byte
	Free(buf []byte)
}

// Limits are the "configured maxima" of §6. The executor enforces the
// three stack depths. MaxLocalsPerFunction and BranchTableMax are not read
// anywhere: the scanner applies wasm.ScanLimits.MaxLocalsPerFunction and
// the instruction decoder a fixed br_table bound instead. Passed
// explicitly into Open, mirroring wazerolift's own
// engine taking its knobs as constructor parameters rather than reading
// environment or file configuration.
type Limits struct {
	OperandStackMax      int
	ControlStackMax      int
	CallStackMax         int
	MaxLocalsPerFunction uint32
	BranchTableMax       uint32
}

// DefaultLimits are generous but finite.
var DefaultLimits = Limits{
	OperandStackMax:      1 << 16,
	ControlStackMax:      1 << 12,
	CallStackMax:         1 << 10,
	MaxLocalsPerFunction: 1 << 16,
	BranchTableMax:       1 << 20,
}

// ctrlKindExec mirrors the validator's frame kinds, but the executor only
// ever materializes block/loop/if/func frames — init-expr evaluation
// happens once, synchronously, at load time (wasm.evalInitExpr), so the
// executor's own control stack never sees that fifth kind.
type ctrlKindExec uint8

const (
	ekBlock ctrlKindExec = iota
	ekLoop
	ekIf
	ekFunc
)

// ctrlFrameExec is the run-time control frame: a branch target already
// resolved to a byte offset (no re-walking of the bytecode is ever
// needed at a branch site), plus the two distinct arities a frame can
// carry — the value produced when its own `end` is reached by normal
// fallthrough, and the (possibly different, for loop) value a `br`
// targeting it carries.
type ctrlFrameExec struct {
	kind           ctrlKindExec
	fallValueful   bool
	branchValueful bool
	sig            api.ValueType
	height         int // operand stack depth when the frame was entered
	target         int // byte offset a branch to this frame jumps to
}

// callFrame is one activation record: the function being executed, its
// expanded locals (params then declared locals), the byte cursor into
// its code, and the bookkeeping needed to unwind on return.
type callFrame struct {
	fn          *wasm.Function
	locals      []api.Value
	cursor      int
	ctrlBase    int // index of this call's func-frame in the control stack
	operandBase int
	resultType  api.ValueType
	valueful    bool
}

// VM is the container of §2/§5: never safe for concurrent use, holds at
// most one attached module, and resets its three stacks on every Attach
// and every top-level Call.
type VM struct {
	alloc  Allocator
	limits Limits

	module *wasm.Module

	operands []api.Value
	frames   []ctrlFrameExec
	calls    []callFrame

	lastErr api.Trap
}

// Open constructs a container with its allocator callback pair and
// configured maxima. The allocator is retained but unused by the core
// execution path itself (the executor uses plain Go slices for its
// stacks); it exists for symmetry with the host surface of §6 and for
// `grow_memory`-adjacent reallocation a future host extension may hook
// into.
func Open(alloc Allocator, limits Limits) *VM {
	return &VM{alloc: alloc, limits: limits}
}

// Close releases the container. Using it afterwards is undefined
// behavior, per §3's lifecycle note.
func (v *VM) Close() {
	v.module = nil
	v.operands = nil
	v.frames = nil
	v.calls = nil
}

// Attach installs m as the container's current module, resetting all
// three stacks to empty. At most one module may be attached at a time.
func (v *VM) Attach(m *wasm.Module) bool {
	if m == nil {
		return false
	}
	v.module = m
	v.resetStacks()
	return true
}

// Detach clears the current module without destroying it — the module
// record outlives detach and may be reattached to another container.
func (v *VM) Detach() bool {
	if v.module == nil {
		return false
	}
	v.module = nil
	v.resetStacks()
	return true
}

func (v *VM) resetStacks() {
	v.operands = v.operands[:0]
	v.frames = v.frames[:0]
	v.calls = v.calls[:0]
}

// LastError returns the trap kind recorded by the most recent failing
// Call, per §7's "container's last-error field" requirement.
func (v *VM) LastError() api.Trap { return v.lastErr }

// Call begins execution of funcIndex with args pushed in declaration
// order, per §6's parameter-passing convention, and pops the result (if
// any) in reverse on return. On trap, stacks are reset but the attached
// module remains attachable for subsequent calls, per §7.
func (v *VM) Call(funcIndex uint32, args ...api.Value) ([]api.Value, error) {
	if v.module == nil {
		return nil, api.TrapInvalidFuncIdx
	}
	v.resetStacks()
	for _, a := range args {
		v.operands = append(v.operands, a)
	}

	if trap := v.invoke(funcIndex); trap != api.TrapNone {
		v.lastErr = trap
		v.resetStacks()
		return nil, trap
	}

	var results []api.Value
	if len(v.operands) > 0 {
		results = append(results, v.operands[len(v.operands)-1])
	}
	v.resetStacks()
	return results, nil
}

// invoke runs funcIndex to completion: it pushes the initial call frame
// and drives step() until the call stack unwinds back below the depth it
// started at.
func (v *VM) invoke(funcIndex uint32) api.Trap {
	if trap := v.pushCall(funcIndex); trap != api.TrapNone {
		return trap
	}
	base := len(v.calls) - 1
	for len(v.calls) > base {
		if trap := v.step(); trap != api.TrapNone {
			return trap
		}
	}
	return api.TrapNone
}

func (v *VM) pushOperand(val api.Value) api.Trap {
	if len(v.operands) >= v.limits.OperandStackMax {
		return api.TrapInvalidStackOperation
	}
	v.operands = append(v.operands, val)
	return api.TrapNone
}

func (v *VM) popOperand() api.Value {
	val := v.operands[len(v.operands)-1]
	v.operands = v.operands[:len(v.operands)-1]
	return val
}
