package hook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type entry struct {
	name  string
	order Order
}

func TestSortOrdersPreDefaultPost(t *testing.T) {
	in := []entry{
		{"B", OrderDefault},
		{"A", OrderPre},
		{"C", OrderPost},
		{"B2", OrderDefault},
		{"A2", OrderPre},
	}
	out := Sort(in, func(e entry) Order { return e.order })

	var names []string
	for _, e := range out {
		names = append(names, e.name)
	}
	assert.Equal(t, []string{"A", "A2", "B", "B2", "C"}, names)
}

func TestSortStableWithinTier(t *testing.T) {
	in := []entry{
		{"first", OrderDefault},
		{"second", OrderDefault},
		{"third", OrderDefault},
	}
	out := Sort(in, func(e entry) Order { return e.order })
	assert.Equal(t, in, out)
}
