package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRightColumnMapping(t *testing.T) {
	for _, right := range AllRights {
		col, err := right.column()
		assert.NoError(t, err, "right %q", right)
		assert.NotEmpty(t, col)
	}

	_, err := Right("bogus").column()
	assert.Error(t, err)
}
