package errors

import (
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder(t *testing.T) {
	base := fmt.Errorf("shard read failed")

	ee := New(base).
		Component("dataset").
		Category(CategoryFileIO).
		Context("shard", "2021000.json").
		Context("line", 42).
		Build()

	require.NotNil(t, ee)
	assert.Equal(t, "shard read failed", ee.Error())
	assert.Equal(t, "dataset", ee.GetComponent())
	assert.Equal(t, string(CategoryFileIO), ee.GetCategory())

	ctx := ee.GetContext()
	assert.Equal(t, "2021000.json", ctx["shard"])
	assert.Equal(t, 42, ctx["line"])
	assert.False(t, ee.GetTimestamp().IsZero())
}

func TestCategoryDefaultsToGeneric(t *testing.T) {
	ee := Newf("something went wrong").Build()
	assert.Equal(t, string(CategoryGeneric), ee.GetCategory())
}

func TestUnwrapPreservesChain(t *testing.T) {
	ee := New(fmt.Errorf("open image: %w", fs.ErrNotExist)).
		Category(CategoryNotFound).
		Build()

	assert.True(t, Is(ee, fs.ErrNotExist))
}

func TestIsMatchesCategory(t *testing.T) {
	a := Newf("conflict one").Category(CategoryConflict).Build()
	b := Newf("conflict two").Category(CategoryConflict).Build()
	c := Newf("io").Category(CategoryFileIO).Build()

	assert.True(t, Is(a, b))
	assert.False(t, Is(a, c))
}

func TestContextCopyIsIsolated(t *testing.T) {
	ee := Newf("err").Context("key", "value").Build()

	ctx := ee.GetContext()
	ctx["key"] = "mutated"

	assert.Equal(t, "value", ee.GetContext()["key"])
}
