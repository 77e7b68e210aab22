package compiler

import (
	"github.com/stjordanis/MOSA-Project/cerr"
	"github.com/stjordanis/MOSA-Project/isa"
)

// codeEmitStage implements §4.4 step 11 / §4.6: it walks the finished,
// fully-allocated graph in block order and asks the target Machine to
// encode it, collecting the resulting bytes and relocation requests onto
// the MethodCompiler for the linker to consume.
type codeEmitStage struct {
	baseStage
	machine isa.Machine
}

func (codeEmitStage) Name() string { return "code-emission" }

func (s codeEmitStage) Run(mc *MethodCompiler) error {
	if mc.Frame == nil {
		return cerr.Invariant("code-emission", "EmitMethod called before Stack Layout produced a Frame")
	}
	w, err := s.machine.EmitMethod(mc.Builder, *mc.Frame)
	if err != nil {
		return err
	}
	mc.Code = w.Bytes
	mc.Relocations = w.Relocs
	return nil
}
