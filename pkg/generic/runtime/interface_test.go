package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInGroupOf(t *testing.T) {
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, InGroupOf([]int{1, 2, 3, 4, 5}, 2))
	assert.Equal(t, [][]int{{1, 2}}, InGroupOf([]int{1, 2}, 2))
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, InGroupOf([]string{"a", "b", "c", "d"}, 2))
}
