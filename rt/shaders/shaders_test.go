package shaders

import (
	"strings"
	"testing"

	"github.com/gekko3d/sand/rt/gpu"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryHoldsEmbeddedPrograms(t *testing.T) {
	lib := NewLibrary()
	assert.Equal(t, []string{
		ParticleCompute, ParticleFragment, ParticleVertex, QuadFragment, QuadVertex,
	}, lib.Names())

	for _, name := range lib.Names() {
		p, ok := lib.Program(name)
		require.True(t, ok, name)
		assert.NotEmpty(t, p.Source, name)
		assert.Contains(t, p.Source, "fn "+p.EntryPoint+"(", name)
	}

	_, ok := lib.Program("missing")
	assert.False(t, ok)
}

func TestComputeWorkgroupMatchesSource(t *testing.T) {
	p, ok := NewLibrary().Program(ParticleCompute)
	require.True(t, ok)
	assert.Equal(t, gpu.StageCompute, p.Stage)
	assert.Equal(t, gpu.Grid{X: 8, Y: 8, Z: 1}, p.WorkgroupSize)
	assert.True(t, strings.Contains(p.Source, "@workgroup_size(8, 8, 1)"))
}

func TestComputeBindingsMatchUnitLayout(t *testing.T) {
	for i, name := range []string{"particles", "params", "laminate", "outputs"} {
		needle := "@binding(" + string(rune('0'+i)) + ") var"
		idx := strings.Index(ParticleComputeWGSL, needle)
		require.GreaterOrEqual(t, idx, 0, needle)
		line := ParticleComputeWGSL[idx:]
		line = line[:strings.IndexByte(line, '\n')]
		assert.Contains(t, line, name)
	}
}

func TestRegisterReplaces(t *testing.T) {
	lib := NewLibrary()
	lib.Register(gpu.Program{Name: QuadVertex, Stage: gpu.StageVertex, Source: "x", EntryPoint: "main"})
	p, _ := lib.Program(QuadVertex)
	assert.Equal(t, "main", p.EntryPoint)
}
