package artifacts_test

import (
	"errors"
	"testing"

	"github.com/poltergeist/conjure/pkg/artifacts"
	"github.com/poltergeist/conjure/pkg/classfile"
	"github.com/poltergeist/conjure/pkg/classfile/classfiletest"
	"github.com/poltergeist/conjure/pkg/diagnostics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const machine = "restx.factory.Machine"

func compiledTree(t *testing.T) *classfile.Tree {
	t.Helper()
	root := t.TempDir()
	classfiletest.Write(t, root, classfiletest.Class{Name: "test/MyAnnotatedClass"})
	classfiletest.Write(t, root, classfiletest.Class{
		Name:       "test/MyAnnotatedClassFactoryMachine",
		Interfaces: []string{"restx/factory/Machine"},
	})
	classfiletest.Write(t, root, classfiletest.Class{
		Name:       "test/Outer$NestedMachine",
		Interfaces: []string{"restx/factory/Machine"},
		Inner: []classfiletest.Inner{{
			Inner: "test/Outer$NestedMachine", Outer: "test/Outer", Name: "NestedMachine",
			Access: classfiletest.Public | classfiletest.Static,
		}},
	})
	classfiletest.Write(t, root, classfiletest.Class{
		Name:       "test/Outer$1",
		Interfaces: []string{"restx/factory/Machine"},
		Inner:      []classfiletest.Inner{{Inner: "test/Outer$1"}},
	})
	classfiletest.Write(t, root, classfiletest.Class{Name: "test/Outer"})

	tree, err := classfile.ScanTree(root)
	require.NoError(t, err)
	return tree
}

func implementsMachine(d classfile.Declaration) bool { return d.Implements(machine) }

func TestLoad_SelectsByPredicate(t *testing.T) {
	tree := compiledTree(t)

	set, err := artifacts.Load(tree, diagnostics.NewCollector(nil), nil, implementsMachine)
	require.NoError(t, err)

	names := map[string]string{}
	for c, d := range set {
		names[c.Name] = d.Name
		assert.NotEmpty(t, c.Bytes)
	}
	// the anonymous machine has no addressable declaration
	assert.Equal(t, map[string]string{
		"test.MyAnnotatedClassFactoryMachine": "test.MyAnnotatedClassFactoryMachine",
		"test.Outer$NestedMachine":            "test.Outer.NestedMachine",
	}, names)
}

func TestLoad_RefusesAfterCompilationErrors(t *testing.T) {
	tree := compiledTree(t)
	collector := diagnostics.NewCollector(nil)
	collector.Errorf(2, "syntax error")

	set, err := artifacts.Load(tree, collector, nil, artifacts.All)

	assert.Nil(t, set)
	assert.ErrorIs(t, err, artifacts.ErrLoadFailed)
	assert.ErrorIs(t, err, artifacts.ErrCompilationErrors)
}

func TestLoad_EmptyOutput(t *testing.T) {
	tree, err := classfile.ScanTree(t.TempDir())
	require.NoError(t, err)

	set, err := artifacts.Load(tree, nil, nil, artifacts.All)
	require.NoError(t, err)
	assert.Empty(t, set)

	set, err = artifacts.Load(nil, nil, nil, artifacts.All)
	require.NoError(t, err)
	assert.Empty(t, set)
}

// disagreeingOutput lists a class whose bytes are missing
type disagreeingOutput struct{}

func (disagreeingOutput) ClassFiles() []string { return []string{"a/Ghost.class"} }
func (disagreeingOutput) ReadClass(string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}
func (disagreeingOutput) Lookup(name string) (classfile.Declaration, bool) {
	return classfile.Declaration{Name: name, BinaryName: name}, name == "a.Ghost"
}

func TestLoad_InconsistentOutputFails(t *testing.T) {
	set, err := artifacts.Load(disagreeingOutput{}, nil, nil, artifacts.All)

	assert.Nil(t, set)
	var loadErr *artifacts.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "a.Ghost", loadErr.Name)
	assert.ErrorIs(t, err, artifacts.ErrLoadFailed)
}

func TestOutputLoader_ParentFirstAndCached(t *testing.T) {
	tree := compiledTree(t)
	parentRoot := t.TempDir()
	classfiletest.Write(t, parentRoot, classfiletest.Class{Name: "test/Outer"})

	parent := artifacts.NewDirLoader("app", nil, parentRoot)
	loader := artifacts.NewOutputLoader("compiled", parent, tree)

	outer, err := loader.LoadClass("test.Outer")
	require.NoError(t, err)
	assert.Same(t, parent, outer.Loader)

	own, err := loader.LoadClass("test.MyAnnotatedClass")
	require.NoError(t, err)
	assert.Same(t, loader, own.Loader)

	again, err := loader.LoadClass("test.MyAnnotatedClass")
	require.NoError(t, err)
	assert.Same(t, own, again)

	_, err = loader.LoadClass("test.Missing")
	assert.ErrorIs(t, err, artifacts.ErrClassNotFound)
}

func TestSet_ByName(t *testing.T) {
	set, err := artifacts.Load(compiledTree(t), nil, nil, artifacts.All)
	require.NoError(t, err)

	c, ok := set.ByName("test.Outer")
	require.True(t, ok)
	assert.Equal(t, "test.Outer", set[c].Name)

	_, ok = set.ByName("test.Outer$1")
	assert.False(t, ok)
}
