package flow

import (
	"time"

	"github.com/flowkit/flowengine/flow/emit"
)

// Options configures an Interpreter. Zero value is valid; defaults are
// applied by NewInterpreter.
type Options struct {
	MaxWorkers      int
	MaxIterations   int
	SuspensionTTL   time.Duration
	Trace           bool
	RecoveryDefault RecoveryPolicy
	Backend         Backend
	Emitter         emit.Emitter
	Choose          Choose
	Metrics         *Metrics
}

// Option mutates an Options value, following the teacher's functional
// options pattern.
type Option func(*Options)

// WithMaxWorkers sets the worker pool size backing parallel branches.
func WithMaxWorkers(n int) Option {
	return func(o *Options) { o.MaxWorkers = n }
}

// WithMaxIterations caps the number of iterations any single loop node may
// execute before returning ErrMaxIterationsExceeded.
func WithMaxIterations(n int) Option {
	return func(o *Options) { o.MaxIterations = n }
}

// WithSuspensionTTL sets how long a suspension record remains valid after
// being stored.
func WithSuspensionTTL(d time.Duration) Option {
	return func(o *Options) { o.SuspensionTTL = d }
}

// WithTrace enables per-run dispatch tracing (§9 replay/trace inspection).
func WithTrace(enabled bool) Option {
	return func(o *Options) { o.Trace = enabled }
}

// WithRecoveryDefaults sets the policy applied to nodes that declare no
// explicit recovery policy of their own.
func WithRecoveryDefaults(p RecoveryPolicy) Option {
	return func(o *Options) { o.RecoveryDefault = p }
}

// WithBackendConfig installs the Backend used for suspend/resume
// persistence.
func WithBackendConfig(b Backend) Option {
	return func(o *Options) { o.Backend = b }
}

// WithEmitter installs the event sink the interpreter reports through.
func WithEmitter(e emit.Emitter) Option {
	return func(o *Options) { o.Emitter = e }
}

// WithChoose installs the decision port used by switch nodes that
// delegate case selection instead of resolving a SwitchKey directly.
func WithChoose(c Choose) Option {
	return func(o *Options) { o.Choose = c }
}

// WithMetrics installs the Prometheus collectors the interpreter updates
// as it dispatches nodes, retries, trips circuits, and suspends/resumes
// (§4.10). A nil Metrics (the default) disables collection entirely.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

func defaultOptions() Options {
	return Options{
		MaxWorkers:      defaultMaxWorkers,
		MaxIterations:   1000,
		SuspensionTTL:   24 * time.Hour,
		RecoveryDefault: DefaultRecoveryPolicy,
	}
}

func (o Options) withDefaults() Options {
	def := defaultOptions()
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = def.MaxWorkers
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = def.MaxIterations
	}
	if o.SuspensionTTL <= 0 {
		o.SuspensionTTL = def.SuspensionTTL
	}
	if o.RecoveryDefault.Kind == "" {
		o.RecoveryDefault = def.RecoveryDefault
	}
	if o.Emitter == nil {
		o.Emitter = emit.NewNullEmitter()
	}
	return o
}
