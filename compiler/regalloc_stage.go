package compiler

import (
	"github.com/stjordanis/MOSA-Project/isa"
	"github.com/stjordanis/MOSA-Project/regalloc"
)

// registerAllocStage implements §4.4 step 9, bridging the platform
// Machine's reported register pools (isa.RegallocConfig) into the
// platform-agnostic regalloc package.
type registerAllocStage struct {
	baseStage
	machine isa.Machine
}

func (registerAllocStage) Name() string { return "register-allocation" }

func (s registerAllocStage) Run(mc *MethodCompiler) error {
	rc := s.machine.RegallocConfig()
	return regalloc.Allocate(mc.Builder, regalloc.Config{
		Allocatable: rc.Allocatable,
		Scratch:     rc.Scratch,
	})
}
