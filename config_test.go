package wasmi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmi-go/wasmi/internal/wasm"
)

func TestRuntimeConfig_defaultsMatchFinishedFeatures(t *testing.T) {
	c := NewRuntimeConfig()
	require.Equal(t, wasm.FeaturesFinished, c.enabledFeatures)
	require.True(t, c.floats)
	require.Equal(t, CompilationModeEager, c.compilationMode)
}

// TestRuntimeConfig_withMethodsDoNotMutateReceiver guards the clone-based
// immutability the teacher's RuntimeConfig relies on: deriving a config must
// never change the one it was derived from.
func TestRuntimeConfig_withMethodsDoNotMutateReceiver(t *testing.T) {
	base := NewRuntimeConfig()
	derived := base.WithFeatureTailCall(false)

	require.True(t, base.enabledFeatures.Get(wasm.FeatureTailCall))
	require.False(t, derived.enabledFeatures.Get(wasm.FeatureTailCall))
}
