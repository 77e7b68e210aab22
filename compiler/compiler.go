package compiler

import (
	"github.com/stjordanis/MOSA-Project/config"
	"github.com/stjordanis/MOSA-Project/ir"
	"github.com/stjordanis/MOSA-Project/isa"
	"github.com/stjordanis/MOSA-Project/layout"
	"github.com/stjordanis/MOSA-Project/trace"
)

// Counters accumulates per-method statistics a stage may want to report,
// mirroring §3's "counter registry".
type Counters struct {
	Values map[string]int64
}

func (c *Counters) Add(name string, n int64) {
	if c.Values == nil {
		c.Values = make(map[string]int64)
	}
	c.Values[name] += n
}

// MethodCompiler is the per-method driver of §4.4: it owns the IR builder,
// the method's layout and platform configuration, and runs the fixed
// stage pipeline in order, recording a textual dump after every stage
// through the shared trace.Sink.
type MethodCompiler struct {
	Body    *MethodBody
	Builder *ir.Builder
	Layout  *layout.MosaTypeLayout
	Options config.Options
	Sink    trace.Sink

	// OffsetInstr maps a CIL byte offset to the first IR instruction the
	// decoder emitted for it, populated by CILDecoderStage and consumed by
	// ExceptionHandlingStage to find the block-graph split points for each
	// protected region's try/handler boundaries.
	OffsetInstr map[int]*ir.Instruction

	// Frame is produced by StackLayoutStage and consumed by the platform
	// Machine's code emitter to resolve ir.StackLocal operands.
	Frame *isa.Frame

	// Code and Relocations are produced by the final code-emission stage.
	Code        []byte
	Relocations []isa.Relocation

	Counters Counters
}

// NewMethodCompiler builds the driver for one method. A nil sink discards
// every stage dump (§5's trace model, used by tests and by compilations
// run with tracing disabled).
func NewMethodCompiler(body *MethodBody, lay *layout.MosaTypeLayout, opts config.Options, sink trace.Sink) *MethodCompiler {
	if sink == nil {
		sink = trace.Discard
	}
	return &MethodCompiler{Body: body, Builder: ir.NewBuilder(), Layout: lay, Options: opts, Sink: sink}
}

// Pipeline returns the fixed stage list of §4.4 in canonical order, bound
// to the given target machine for the platform-dependent stages (6-9, 11).
func Pipeline(machine isa.Machine) []Stage {
	return []Stage{
		CILDecoderStage{},
		ExceptionHandlingStage{},
		ssaConstructStage{},
		optimizeStage{},
		leaveSSAStage{},
		platformLoweringStage{machine: machine},
		platformTweakStage{machine: machine},
		fixedRegisterAssignStage{machine: machine},
		registerAllocStage{machine: machine},
		StackLayoutStage{},
		codeEmitStage{machine: machine},
	}
}

// Compile drives mc through the full pipeline bound to machine, stopping
// at the first stage failure (§4.4: "Failures in a stage are fatal for the
// method; they do not retry").
func (mc *MethodCompiler) Compile(machine isa.Machine) error {
	return mc.Run(Pipeline(machine))
}

// Run drives every stage in order through Initialize/Run/Finish.
func (mc *MethodCompiler) Run(stages []Stage) error {
	name := mc.Body.Method.Name()
	for _, st := range stages {
		if err := st.Initialize(mc); err != nil {
			return mc.fail(st.Name(), err)
		}
		if err := st.Run(mc); err != nil {
			return mc.fail(st.Name(), err)
		}
		if err := st.Finish(mc); err != nil {
			return mc.fail(st.Name(), err)
		}
		stage := st.Name()
		mc.Sink.StageDump(name, stage, func() string { return mc.Builder.String() })
	}
	return nil
}

func (mc *MethodCompiler) fail(stage string, err error) error {
	mc.Sink.Error(mc.Body.Method.Name(), stage, err)
	return err
}
