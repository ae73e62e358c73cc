package deltadoc

import (
	"github.com/npillmayer/deltadoc/segment"
	"github.com/npillmayer/schuko"
	"github.com/npillmayer/schuko/tracing"
)

// Configuration keys understood by WithConfig.
const (
	ConfigMerge      = "deltadoc.merge"      // bool, merge adjacent segments (default true)
	ConfigPageSize   = "deltadoc.pagesize"   // int, page size for file sources opened by OpenFile
	ConfigTraceLevel = "deltadoc.tracelevel" // string, trace level of a tracer set by WithTracer
)

// Option configures a document at construction time.
type Option func(*options)

type options struct {
	merge      bool
	pageSize   int
	trace      tracing.Trace
	traceLevel string // from ConfigTraceLevel, applied to private tracers only
}

func defaultOptions() options {
	return options{
		merge:    true,
		pageSize: segment.DefaultPageSize,
	}
}

func makeOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.trace == nil {
		if o.traceLevel != "" {
			tracer().Debugf("deltadoc: %s ignored for shared tracer", ConfigTraceLevel)
		}
		o.trace = tracer()
	} else if o.traceLevel != "" {
		o.trace.SetTraceLevel(tracing.TraceLevelFromString(o.traceLevel))
	}
	return o
}

// WithMergeDisabled switches off merging of adjacent segments. Content is
// unaffected, but chains will fragment faster. Useful for debugging.
func WithMergeDisabled() Option {
	return func(o *options) {
		o.merge = false
	}
}

// WithFilePageSize sets the size of the page cache used for file sources
// opened by OpenFile. Values <= 0 select segment.DefaultPageSize.
func WithFilePageSize(n int) Option {
	return func(o *options) {
		if n <= 0 {
			n = segment.DefaultPageSize
		}
		o.pageSize = n
	}
}

// WithTracer lets a document trace to t instead of the 'deltadoc' tracer.
func WithTracer(t tracing.Trace) Option {
	return func(o *options) {
		o.trace = t
	}
}

// WithConfig reads document options from an application configuration.
// Keys which are not set leave the respective option untouched.
//
// ConfigTraceLevel is applied only to a tracer supplied by WithTracer, in any
// order of options. The level of the shared 'deltadoc' tracer is left to the
// application's tracing setup.
func WithConfig(conf schuko.Configuration) Option {
	return func(o *options) {
		if conf == nil {
			return
		}
		if conf.IsSet(ConfigMerge) {
			o.merge = conf.GetBool(ConfigMerge)
		}
		if conf.IsSet(ConfigPageSize) {
			if n := conf.GetInt(ConfigPageSize); n > 0 {
				o.pageSize = n
			}
		}
		if conf.IsSet(ConfigTraceLevel) {
			o.traceLevel = conf.GetString(ConfigTraceLevel)
		}
	}
}
