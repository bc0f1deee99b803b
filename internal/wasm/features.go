package wasm

import "strings"

// Features is a bitset of WebAssembly proposals a Store enables, matching
// the embedding API's per-store feature toggles (spec §6). Each feature is
// its own bit, starting at 1<<0, so a zero-valued Features means "none set".
type Features uint64

const (
	// FeatureMutableGlobal allows globals to be mutable. Finished in Wasm 1.0.
	FeatureMutableGlobal Features = 1 << iota
	// FeatureSignExtensionOps adds i32.extend8_s, i32.extend16_s, i64.extend{8,16,32}_s.
	FeatureSignExtensionOps
	// FeatureSaturatingFloatToInt adds the trunc_sat family of conversions.
	FeatureSaturatingFloatToInt
	// FeatureMultiValue allows more than one result type and arbitrary block types.
	FeatureMultiValue
	// FeatureBulkMemoryOperations adds memory/table copy, fill, init and drop ops.
	FeatureBulkMemoryOperations
	// FeatureReferenceTypes adds funcref/externref, table.get/set/grow/fill and ref.* ops.
	FeatureReferenceTypes
	// FeatureTailCall adds return_call and return_call_indirect.
	FeatureTailCall
	// FeatureExtendedConst allows arithmetic in global/element/data offset constant expressions.
	FeatureExtendedConst
)

// Features20191205 is the feature set of the WebAssembly 1.0 (20191205) spec.
const Features20191205 = FeatureMutableGlobal

// FeaturesFinished is every feature this store config exposes, all of which
// are enabled by default per spec §6.
const FeaturesFinished = FeatureMutableGlobal |
	FeatureSignExtensionOps |
	FeatureSaturatingFloatToInt |
	FeatureMultiValue |
	FeatureBulkMemoryOperations |
	FeatureReferenceTypes |
	FeatureTailCall |
	FeatureExtendedConst

// Get returns true if the feature (or features) are enabled.
func (f Features) Get(feature Features) bool {
	return f&feature != 0
}

// Set assigns the feature (or features) to the given enabled state, returning
// the updated bitset.
func (f Features) Set(feature Features, enabled bool) Features {
	if enabled {
		return f | feature
	}
	return f &^ feature
}

// Require returns an error describing the missing feature if it isn't enabled.
func (f Features) Require(feature Features) error {
	if f.Get(feature) {
		return nil
	}
	return &featureError{feature}
}

type featureError struct{ feature Features }

func (e *featureError) Error() string {
	return "feature " + e.feature.String() + " is disabled, try adding it via RuntimeConfig.WithFeature*Name*(true)"
}

var featureNames = []struct {
	f    Features
	name string
}{
	{FeatureBulkMemoryOperations, "bulk-memory-operations"},
	{FeatureExtendedConst, "extended-const"},
	{FeatureMultiValue, "multi-value"},
	{FeatureMutableGlobal, "mutable-global"},
	{FeatureReferenceTypes, "reference-types"},
	{FeatureSaturatingFloatToInt, "saturating-float-to-int"},
	{FeatureSignExtensionOps, "sign-extension-ops"},
	{FeatureTailCall, "tail-call"},
}

// String renders the set of enabled feature names, pipe-delimited and
// alphabetically sorted, matching the teacher's Features.String() shape.
func (f Features) String() string {
	var names []string
	for _, fn := range featureNames {
		if f.Get(fn.f) {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, "|")
}
