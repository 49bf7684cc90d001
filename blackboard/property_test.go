package blackboard_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/kaelion/agentkit/blackboard"
)

// TestSpawnIndependenceProperty generalizes TestSpawnIndependence: for any
// sequence of bindings set on a child after Spawn, the parent's view of
// those same keys is unaffected (spec.md §8 scenario 4).
func TestSpawnIndependenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	keyGen := gen.OneConstOf("a", "b", "c", "d")
	valGen := gen.OneConstOf("v1", "v2", "v3")

	properties.Property("child writes never reach the parent", prop.ForAll(
		func(parentKey, parentVal, childKey, childVal string) bool {
			parent := blackboard.New()
			parent.Bind(parentKey, parentVal)
			_, childKeyPresentBeforeSpawn := parent.Get(childKey)

			child := parent.Spawn()
			child.Bind(childKey, childVal)

			gotParent, _ := parent.Get(parentKey)
			if gotParent != parentVal {
				return false
			}

			if childKey == parentKey {
				return true // child overwrote its copy of parentKey; parent's own value already checked above
			}
			_, childKeyPresentAfterSpawn := parent.Get(childKey)
			return childKeyPresentAfterSpawn == childKeyPresentBeforeSpawn
		},
		keyGen, valGen, keyGen, valGen,
	))

	properties.TestingRun(t)
}
