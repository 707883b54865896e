// Package config holds the engine's recognized options, spec.md §6's
// configuration table made concrete. It mirrors solver.go's SolverConfig
// pattern: a plain struct populated by functional options, not a
// file-based config layer — the option set is small and closed, so a
// parser would be ceremony this repo doesn't need.
package config

// SIMode selects how aggressively the engine pursues single-invocation
// recognition (spec.md §6 table).
type SIMode int

const (
	// SINone disables single-invocation recognition entirely.
	SINone SIMode = iota
	// SIUse prefers single-invocation handling when recognized.
	SIUse
	// SIAllAbort aborts the synthesis attempt if the conjecture is not
	// fully single-invocation.
	SIAllAbort
)

func (m SIMode) String() string {
	switch m {
	case SINone:
		return "NONE"
	case SIUse:
		return "USE"
	case SIAllAbort:
		return "ALL_ABORT"
	default:
		return "UNKNOWN_SI_MODE"
	}
}

// InvTemplMode selects the invariant template polarity (spec.md §4.5 step 5).
type InvTemplMode int

const (
	InvTemplNone InvTemplMode = iota
	InvTemplPre
	InvTemplPost
)

func (m InvTemplMode) String() string {
	switch m {
	case InvTemplNone:
		return "NONE"
	case InvTemplPre:
		return "PRE"
	case InvTemplPost:
		return "POST"
	default:
		return "UNKNOWN_TEMPL_MODE"
	}
}

// DefaultDetTraceStepLimit is the bound the source hard-codes (spec.md §9,
// §4.4's "driver loop is bounded by a small step limit (100)"). Surfaced
// here as a default rather than a constant so a host can raise it, per the
// explicit open question in spec.md §9.
const DefaultDetTraceStepLimit = 100

// Options collects every recognized configuration name from spec.md §6.
type Options struct {
	SIMode           SIMode
	SIPartial        bool
	InvTemplMode     InvTemplMode
	InvAutoUnfold    bool
	Incremental      bool
	SolMinCore       bool
	SolMinInst       bool
	SIReconstruct    bool
	SIAbort          bool
	DetTraceStepLimit int
}

// Option mutates an Options value during construction.
type Option func(*Options)

// Default returns the engine's default configuration: SI preferred, no
// partial-SI, no template, non-incremental, full step limit.
func Default() *Options {
	return &Options{
		SIMode:            SIUse,
		InvTemplMode:      InvTemplNone,
		DetTraceStepLimit: DefaultDetTraceStepLimit,
	}
}

// New builds an Options from Default() plus the given overrides.
func New(opts ...Option) *Options {
	o := Default()
	for _, apply := range opts {
		apply(o)
	}
	return o
}

func WithSIMode(m SIMode) Option           { return func(o *Options) { o.SIMode = m } }
func WithSIPartial(v bool) Option          { return func(o *Options) { o.SIPartial = v } }
func WithInvTemplMode(m InvTemplMode) Option { return func(o *Options) { o.InvTemplMode = m } }
func WithInvAutoUnfold(v bool) Option      { return func(o *Options) { o.InvAutoUnfold = v } }
func WithIncremental(v bool) Option        { return func(o *Options) { o.Incremental = v } }
func WithSolMinCore(v bool) Option         { return func(o *Options) { o.SolMinCore = v } }
func WithSolMinInst(v bool) Option         { return func(o *Options) { o.SolMinInst = v } }
func WithSIReconstruct(v bool) Option      { return func(o *Options) { o.SIReconstruct = v } }
func WithSIAbort(v bool) Option            { return func(o *Options) { o.SIAbort = v } }
func WithDetTraceStepLimit(n int) Option {
	return func(o *Options) { o.DetTraceStepLimit = n }
}
