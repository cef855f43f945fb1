//go:build property
// +build property

package eventbus

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestFanOutProperties checks ordering and namespace teardown.
func TestFanOutProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("subscribers run in subscription order", prop.ForAll(
		func(n int) bool {
			ch := New[int]()
			var order []int
			for i := 0; i < n; i++ {
				i := i
				_, _ = ch.Subscribe(fmt.Sprintf("evt.ns%d", i%3), func(context.Context, string, int) {
					order = append(order, i)
				})
			}
			if ch.Publish(context.Background(), "evt", 0) != n {
				return false
			}
			for i := range order {
				if order[i] != i {
					return false
				}
			}
			return len(order) == n
		},
		gen.IntRange(0, 50),
	))

	properties.Property("unsubscribing a namespace silences only that namespace", prop.ForAll(
		func(n int, victim int) bool {
			ch := New[int]()
			calls := make(map[string]int)
			for i := 0; i < n; i++ {
				ns := fmt.Sprintf("c%d", i)
				_, _ = ch.Subscribe("apiAfterRender."+ns, func(context.Context, string, int) {
					calls[ns]++
				})
			}
			target := fmt.Sprintf("c%d", victim%n)
			ch.Unsubscribe("." + target)
			ch.Publish(context.Background(), "apiAfterRender", 0)
			if calls[target] != 0 {
				return false
			}
			return len(calls) == n-1
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
