package wasmi

import "github.com/wasmi-go/wasmi/internal/wasm"

// CompilationMode controls when a compiled function's body is translated
// into register IR relative to when Module.Compile and Instance.New run.
//
// Only CompilationModeEager is implemented by internal/engine/interpreter
// today: NewModuleEngine translates every function eagerly. The other two
// values are accepted so an embedder's configuration round-trips, and are
// treated as CompilationModeEager; see DESIGN.md for why lazy translation
// was not built out this round.
type CompilationMode byte

const (
	// CompilationModeEager translates every function body when the module is
	// instantiated (NewModuleEngine), once per instance; Engine.Compile itself
	// translates nothing.
	CompilationModeEager CompilationMode = iota
	// CompilationModeLazy is accepted and behaves exactly like
	// CompilationModeEager: translation is not deferred to a function's first
	// call or table reference.
	CompilationModeLazy
	// CompilationModeLazyTranslation is accepted and behaves exactly like
	// CompilationModeEager: translation is not deferred, and translated bodies
	// are not shared across instances of one compiled Module.
	CompilationModeLazyTranslation
)

// RuntimeConfig is the embedder-facing configuration for an Engine, the
// spec §6 "Engine(config)" input. Like the teacher's RuntimeConfig, it is
// immutable once built: every With* method returns a modified clone rather
// than mutating the receiver, so a shared base config can be specialized per
// Engine without the specializations interfering with each other.
type RuntimeConfig struct {
	enabledFeatures      wasm.Features
	consumeFuel          bool
	ignoreCustomSections bool
	floats               bool
	compilationMode      CompilationMode
}

// NewRuntimeConfig returns the default configuration: every Wasm 1.0
// proposal finished as of this spec enabled (mutable-globals,
// sign-extension, saturating-float-to-int, multi-value, bulk-memory,
// reference-types, tail-call, extended-const), fuel metering off, custom
// sections honored, floats enabled, and eager compilation.
func NewRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		enabledFeatures: wasm.FeaturesFinished,
		floats:          true,
		compilationMode: CompilationModeEager,
	}
}

func (c RuntimeConfig) clone() RuntimeConfig { return c }

// WithConsumeFuel toggles whether Stores created from this config meter
// execution cost; an embedder must still call Store.SetFuel to arm a
// nonzero budget; until it does, every call traps immediately with
// TrapCodeOutOfFuel, matching the "no implicit infinite fuel" reading of
// spec §5's cooperative-cancellation model.
func (c RuntimeConfig) WithConsumeFuel(consumeFuel bool) RuntimeConfig {
	ret := c.clone()
	ret.consumeFuel = consumeFuel
	return ret
}

// WithIgnoreCustomSections toggles whether a compiled Module retains
// debug-only data sourced from custom sections (currently: the name section
// feeding FunctionInstance.DebugName). Setting this conserves memory on
// modules whose custom sections are never consulted, at the cost of less
// readable traps.
func (c RuntimeConfig) WithIgnoreCustomSections(ignore bool) RuntimeConfig {
	ret := c.clone()
	ret.ignoreCustomSections = ignore
	return ret
}

// WithFloats toggles whether a Module may declare or use floating-point
// value types. Disabling this is for embedders who need the subset of Wasm
// that round-trips identically across architectures regardless of FPU
// behavior; Module.Compile rejects any function type or global that
// mentions f32/f64 when this is false.
func (c RuntimeConfig) WithFloats(floats bool) RuntimeConfig {
	ret := c.clone()
	ret.floats = floats
	return ret
}

// WithCompilationMode selects when function bodies are translated; see
// CompilationMode.
func (c RuntimeConfig) WithCompilationMode(mode CompilationMode) RuntimeConfig {
	ret := c.clone()
	ret.compilationMode = mode
	return ret
}

// WithFeature toggles a single wasm.Features bit, the generic form behind
// every wasm_<feature> config knob in spec §6 (ex WithFeature(wasm.
// FeatureTailCall, false) disables tail calls for a module that must be
// portable to an engine without that proposal).
func (c RuntimeConfig) WithFeature(feature wasm.Features, enabled bool) RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(feature, enabled)
	return ret
}

// WithFeatureMutableGlobal toggles FeatureMutableGlobal. Finished in Wasm 1.0.
func (c RuntimeConfig) WithFeatureMutableGlobal(enabled bool) RuntimeConfig {
	return c.WithFeature(wasm.FeatureMutableGlobal, enabled)
}

// WithFeatureSignExtensionOps toggles FeatureSignExtensionOps.
func (c RuntimeConfig) WithFeatureSignExtensionOps(enabled bool) RuntimeConfig {
	return c.WithFeature(wasm.FeatureSignExtensionOps, enabled)
}

// WithFeatureSaturatingFloatToInt toggles FeatureSaturatingFloatToInt.
func (c RuntimeConfig) WithFeatureSaturatingFloatToInt(enabled bool) RuntimeConfig {
	return c.WithFeature(wasm.FeatureSaturatingFloatToInt, enabled)
}

// WithFeatureMultiValue toggles FeatureMultiValue.
func (c RuntimeConfig) WithFeatureMultiValue(enabled bool) RuntimeConfig {
	return c.WithFeature(wasm.FeatureMultiValue, enabled)
}

// WithFeatureBulkMemoryOperations toggles FeatureBulkMemoryOperations.
func (c RuntimeConfig) WithFeatureBulkMemoryOperations(enabled bool) RuntimeConfig {
	return c.WithFeature(wasm.FeatureBulkMemoryOperations, enabled)
}

// WithFeatureReferenceTypes toggles FeatureReferenceTypes.
func (c RuntimeConfig) WithFeatureReferenceTypes(enabled bool) RuntimeConfig {
	return c.WithFeature(wasm.FeatureReferenceTypes, enabled)
}

// WithFeatureTailCall toggles FeatureTailCall.
func (c RuntimeConfig) WithFeatureTailCall(enabled bool) RuntimeConfig {
	return c.WithFeature(wasm.FeatureTailCall, enabled)
}

// WithFeatureExtendedConst toggles FeatureExtendedConst.
func (c RuntimeConfig) WithFeatureExtendedConst(enabled bool) RuntimeConfig {
	return c.WithFeature(wasm.FeatureExtendedConst, enabled)
}
