package util

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestStringSet(t *testing.T) {
	set := NewStringSet()
	for _, s := range []string{"10.0.0.2", "10.0.0.3", "10.0.0.2"} {
		set.Add(s)
	}
	assert.True(t, set.Has("10.0.0.2"))
	assert.True(t, set.Has("10.0.0.3"))
	assert.False(t, set.Has("10.0.0.1"))
	assert.False(t, set.Has(""))
}
