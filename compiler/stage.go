package compiler

// Stage is one step of §4.4's fixed pipeline. CIL decoding, optimization,
// lowering, allocation, and emission all implement this the same way, so
// MethodCompiler can drive every stage through one loop regardless of what
// a given stage actually does to the graph. Initialize/Run/Finish mirror
// the three-phase contract named in §4.4 directly; most stages leave
// Initialize and Finish empty and do their work in Run.
type Stage interface {
	Name() string
	Initialize(mc *MethodCompiler) error
	Run(mc *MethodCompiler) error
	Finish(mc *MethodCompiler) error
}

// baseStage gives a Stage a no-op Initialize/Finish so concrete stages
// only need to implement Name and Run.
type baseStage struct{}

func (baseStage) Initialize(*MethodCompiler) error { return nil }
func (baseStage) Finish(*MethodCompiler) error     { return nil }
