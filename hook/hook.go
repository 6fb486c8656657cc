// Package hook sorts plugin hook entries by order tier, mirroring Rollup's
// pre/default/post hook-ordering contract. The handlers themselves are
// carried by plugin.HookSpec.
package hook

import "sort"

// Order is a hook's declared position within its tier.
type Order string

const (
	OrderPre     Order = "pre"
	OrderDefault Order = ""
	OrderPost    Order = "post"
)

func tier(o Order) int {
	switch o {
	case OrderPre:
		return 0
	case OrderPost:
		return 2
	default:
		return 1
	}
}

// Sort stably reorders items so that OrderPre entries precede OrderDefault
// entries which precede OrderPost entries; within a tier, input order is
// preserved. orderOf extracts the order of one item.
func Sort[T any](items []T, orderOf func(T) Order) []T {
	out := make([]T, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return tier(orderOf(out[i])) < tier(orderOf(out[j]))
	})
	return out
}
