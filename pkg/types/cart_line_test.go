package types

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCartLinesHelpers(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	lines := CartLines{{ProductID: a, Quantity: 2}, {ProductID: b, Quantity: 5}}

	assert.Equal(t, 1, lines.Find(b))
	assert.Equal(t, -1, lines.Find(uuid.New()))
	assert.Equal(t, 5, lines.Quantity(b))
	assert.Equal(t, 0, lines.Quantity(uuid.New()))

	rest := lines.Without(a)
	assert.Len(t, rest, 1)
	assert.Equal(t, b, rest[0].ProductID)
	assert.Len(t, lines, 2)
}
