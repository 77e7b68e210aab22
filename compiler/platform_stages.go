package compiler

import "github.com/stjordanis/MOSA-Project/isa"

// platformLoweringStage implements §4.4 step 6.
type platformLoweringStage struct {
	baseStage
	machine isa.Machine
}

func (platformLoweringStage) Name() string { return "platform-lowering" }

func (s platformLoweringStage) Run(mc *MethodCompiler) error {
	return s.machine.Lower(mc.Builder)
}

// platformTweakStage implements §4.4 step 7.
type platformTweakStage struct {
	baseStage
	machine isa.Machine
}

func (platformTweakStage) Name() string { return "platform-tweak" }

func (s platformTweakStage) Run(mc *MethodCompiler) error {
	return s.machine.Tweak(mc.Builder)
}

// fixedRegisterAssignStage implements §4.4 step 8.
type fixedRegisterAssignStage struct {
	baseStage
	machine isa.Machine
}

func (fixedRegisterAssignStage) Name() string { return "fixed-register-assignment" }

func (s fixedRegisterAssignStage) Run(mc *MethodCompiler) error {
	return s.machine.AssignFixedRegisters(mc.Builder)
}
