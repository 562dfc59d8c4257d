package params

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_NormalizesLeaves(t *testing.T) {
	tree := MustParse(`
z_first: 1
bins: [[0, 4], [5, 9]]
vec: [1, 2.5, 3]
flag: true
name: hosp
mixed: [1, a]
anchors:
  base: &b 7
  copy: *b
`)
	assert.Equal(t, []string{"z_first", "bins", "vec", "flag", "name", "mixed", "anchors"}, tree.Keys())

	bins, err := tree.Bins("bins")
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 4}, {5, 9}}, bins)

	vec, _ := tree.Get("vec")
	assert.Equal(t, []float64{1, 2.5, 3}, vec)
	flag, _ := tree.Get("flag")
	assert.Equal(t, true, flag)
	mixed, _ := tree.Get("mixed")
	assert.Equal(t, []any{1.0, "a"}, mixed)
	cp, err := tree.Float("anchors.copy")
	require.NoError(t, err)
	assert.Equal(t, 7.0, cp)
}

func TestParse_RejectsNonMapping(t *testing.T) {
	_, err := Parse([]byte("- 1\n- 2\n"))
	assert.ErrorContains(t, err, "must be a mapping")

	empty, err := Parse([]byte("   \n"))
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestYAML_RoundTripKeepsOrder(t *testing.T) {
	src := MustParse("b: {y: [1, 2], x: 3}\na: text\n")
	out, err := src.YAML()
	require.NoError(t, err)

	back, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, back.Keys())
	assert.Equal(t, []string{"y", "x"}, mustSub(t, back, "b").Keys())
	assert.Equal(t, src.Flatten(), back.Flatten())
	assert.Contains(t, string(out), "[1, 2]")
}

func TestLoad_DirectoryMergesInOrder(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("10_base.yml", "model: {structure: {E_gamma_k: 2}, monte_carlo: {reroll_variance: 0.1}}\n")
	write("20_override.yaml", "model: {structure: {E_gamma_k: 3}}\n")
	write("README.md", "not yaml: [")

	tree, err := Load(dir)
	require.NoError(t, err)
	k, err := tree.Int("model.structure.E_gamma_k")
	require.NoError(t, err)
	assert.Equal(t, 3, k)
	rv, err := tree.Float(PathRerollVariance)
	require.NoError(t, err)
	assert.Equal(t, 0.1, rv)

	single, err := Load(filepath.Join(dir, "10_base.yml"))
	require.NoError(t, err)
	k, _ = single.Int("model.structure.E_gamma_k")
	assert.Equal(t, 2, k)

	_, err = Load(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}
