package compiler

import "github.com/stjordanis/MOSA-Project/ir/pass"

// ssaConstructStage implements §4.4 step 3. Dominance must run first;
// Dominance itself has no separate pipeline slot since SSA construction
// needs it immediately beforehand, so this stage folds both into one.
type ssaConstructStage struct{ baseStage }

func (ssaConstructStage) Name() string { return "ssa-construct" }

func (ssaConstructStage) Run(mc *MethodCompiler) error {
	pass.Dominance(mc.Builder)
	pass.ConstructSSA(mc.Builder)
	return nil
}

// optimizeStage implements §4.4 step 4.
type optimizeStage struct{ baseStage }

func (optimizeStage) Name() string { return "optimize" }

func (optimizeStage) Run(mc *MethodCompiler) error {
	return pass.Optimize(mc.Builder, mc.Options)
}

// leaveSSAStage implements §4.4 step 5.
type leaveSSAStage struct{ baseStage }

func (leaveSSAStage) Name() string { return "leave-ssa" }

func (leaveSSAStage) Run(mc *MethodCompiler) error {
	return pass.LeaveSSA(mc.Builder)
}
