package ptr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTo(t *testing.T) {
	v := 200
	p := To(v)
	v = 500
	assert.Equal(t, 200, *p)
}

func TestDeref(t *testing.T) {
	assert.Equal(t, 304, Deref(To(304), 0))
	assert.Equal(t, 0, Deref[int](nil, 0))
	assert.Equal(t, "none", Deref[string](nil, "none"))
}
