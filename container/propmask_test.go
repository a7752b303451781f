package container_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ginta1337/porto/container"
)

func TestPropMaskSetClearHas(t *testing.T) {
	var m container.PropMask
	assert.False(t, m.Has(3))

	m.Set(3)
	assert.True(t, m.Has(3))
	assert.False(t, m.Has(2))
	assert.False(t, m.Has(4))

	m.Clear(3)
	assert.False(t, m.Has(3))
}

func TestPropMaskSpansMultipleWords(t *testing.T) {
	var m container.PropMask
	m.Set(0)
	m.Set(63)
	m.Set(64)
	m.Set(200)

	assert.True(t, m.Has(0))
	assert.True(t, m.Has(63))
	assert.True(t, m.Has(64))
	assert.True(t, m.Has(200))
	assert.False(t, m.Has(199))
}

func TestPropMaskCloneIsIndependent(t *testing.T) {
	var m container.PropMask
	m.Set(5)

	clone := m.Clone()
	assert.True(t, clone.Has(5))

	clone.Set(6)
	assert.False(t, m.Has(6), "mutating the clone must not affect the original")
	assert.True(t, clone.Has(6))
}

func TestPropMaskHasOnUnsetBitBeyondLength(t *testing.T) {
	var m container.PropMask
	m.Set(1)
	assert.False(t, m.Has(500))
}
