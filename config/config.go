// Package config holds the structured Options consumed by compiler.NewMethodCompiler,
// following the functional-options shape used throughout the corpus for
// runtime configuration structs.
package config

// Platform selects the target instruction set. ARMv6 and ARMv8 share the
// arm family but differ in pointer size and available encodings.
type Platform int

const (
	PlatformX86 Platform = iota
	PlatformX64
	PlatformARMv6
	PlatformARMv8
)

func (p Platform) String() string {
	switch p {
	case PlatformX86:
		return "x86"
	case PlatformX64:
		return "x64"
	case PlatformARMv6:
		return "armv6"
	case PlatformARMv8:
		return "armv8"
	default:
		return "unknown"
	}
}

// PointerSize returns the native pointer size in bytes for this platform,
// used directly by layout.New's ptrSize parameter.
func (p Platform) PointerSize() int {
	switch p {
	case PlatformX86, PlatformARMv6:
		return 4
	case PlatformX64, PlatformARMv8:
		return 8
	default:
		return 8
	}
}

// Options toggles individual stages of the pipeline described in §4.4.
// The zero value leaves every toggle off; Default and New supply the
// production values. Tests typically disable most optimization passes to
// keep fixtures small.
type Options struct {
	Platform Platform

	// EnableConstFold toggles constant folding.
	EnableConstFold bool
	// EnableSCCP toggles sparse conditional constant propagation. Not yet
	// implemented by ir/pass.Optimize; reserved for a future pass and
	// defaulted off so the name doesn't promise behavior that isn't there.
	EnableSCCP bool
	// EnableValueNumbering toggles (local) value numbering.
	EnableValueNumbering bool
	// EnableDCE toggles dead-code elimination. This is nearly always on:
	// disabling it is for debugging the pipeline only.
	EnableDCE bool
	// EnableInlining toggles call-site inlining. Not yet implemented: the
	// pipeline compiles one method's body in isolation and CallTarget
	// carries only a callee's symbol and signature, not its body, so
	// there is nothing in scope to inline into a caller yet. Defaulted
	// off until a whole-program compilation context exists.
	EnableInlining bool
	// EnableLongIntExpansion toggles 64-to-32 bit expansion of integer
	// arithmetic on 32-bit targets. Ignored on 64-bit platforms. Not yet
	// implemented: isa/x86 and isa/arm64's ARMv6 configuration have no
	// I64-width encodings, so 64-bit arithmetic on those targets should
	// be treated as unsupported rather than silently mis-encoded until
	// this pass (or equivalent per-backend lowering) lands. Defaulted
	// off on every platform.
	EnableLongIntExpansion bool
	// EnableTwoPassOpt re-runs the optimization sequence a second time
	// after the first pass converges, to catch opportunities the first
	// pass's ordering missed.
	EnableTwoPassOpt bool

	// AbortOnMethodFailure makes a single method's stage failure abort the
	// whole compilation queue instead of just failing that method (§7
	// "a single-method failure does not abort the queue unless a global
	// option requests it").
	AbortOnMethodFailure bool
}

// Option mutates an Options value.
type Option func(*Options)

// Default returns the production configuration for the given platform:
// every implemented optimization on, per-method failures isolated.
// EnableSCCP, EnableInlining, and EnableLongIntExpansion default off since
// none of the three are implemented yet (see their doc comments above).
func Default(p Platform) Options {
	return Options{
		Platform:               p,
		EnableConstFold:        true,
		EnableSCCP:             false,
		EnableValueNumbering:   true,
		EnableDCE:              true,
		EnableInlining:         false,
		EnableLongIntExpansion: false,
		EnableTwoPassOpt:       false,
		AbortOnMethodFailure:   false,
	}
}

// New applies opts on top of Default(p).
func New(p Platform, opts ...Option) Options {
	o := Default(p)
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithAbortOnMethodFailure(v bool) Option {
	return func(o *Options) { o.AbortOnMethodFailure = v }
}

func WithOptimizations(constFold, sccp, valueNumbering, inlining bool) Option {
	return func(o *Options) {
		o.EnableConstFold = constFold
		o.EnableSCCP = sccp
		o.EnableValueNumbering = valueNumbering
		o.EnableInlining = inlining
	}
}

func WithTwoPassOpt(v bool) Option {
	return func(o *Options) { o.EnableTwoPassOpt = v }
}
