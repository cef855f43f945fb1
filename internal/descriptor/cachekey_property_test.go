//go:build property
// +build property

package descriptor

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestCacheKeyProperties checks determinism and injectivity of CacheKey.
func TestCacheKeyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("identical inputs give identical keys", prop.ForAll(
		func(u, data string) bool {
			return CacheKey(u, data) == CacheKey(u, data)
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("distinct pairs never collide", prop.ForAll(
		func(u1, d1, u2, d2 string) bool {
			if u1 == u2 && d1 == d2 {
				return true
			}
			return CacheKey(u1, d1) != CacheKey(u2, d2)
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.Property("moving characters across the boundary changes the key", prop.ForAll(
		func(s string, split int) bool {
			if len(s) < 2 {
				return true
			}
			i := split % len(s)
			j := (i + 1) % len(s)
			if i == j {
				return true
			}
			return CacheKey(s[:i], s[i:]) != CacheKey(s[:j], s[j:])
		},
		gen.AlphaString(),
		gen.IntRange(0, 1000),
	))

	properties.Property("request data order does not matter", prop.ForAll(
		func(keys []string) bool {
			forward := make(map[string]any, len(keys))
			backward := make(map[string]any, len(keys))
			for i, k := range keys {
				forward[k] = k
				backward[keys[len(keys)-1-i]] = keys[len(keys)-1-i]
			}
			return Values(forward).Encode() == Values(backward).Encode()
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("a value and a one-element list never share a key", prop.ForAll(
		func(k, v string, post bool) bool {
			method := MethodGet
			if post {
				method = MethodPost
			}
			single := KeyData(method, map[string]any{k: v})
			list := KeyData(method, map[string]any{k: []string{v}})
			return single != list
		},
		gen.AlphaString(),
		gen.AnyString(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
