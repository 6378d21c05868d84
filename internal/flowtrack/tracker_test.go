package flowtrack

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_RegisterAndPopAll(t *testing.T) {
	tr := New()

	tr.Register("flow-1", MessageRef{ChatID: "c1", MessageID: "m1"})
	tr.Register("flow-1", MessageRef{ChatID: "c1", MessageID: "m2"})
	tr.Register("flow-2", MessageRef{ChatID: "c2", MessageID: "m3"})

	refs := tr.PopAll("flow-1")
	require.Len(t, refs, 2)
	assert.Equal(t, "m1", refs[0].MessageID)
	assert.Equal(t, "m2", refs[1].MessageID)

	// Popped flows are gone; other flows are untouched
	assert.Nil(t, tr.PopAll("flow-1"))
	assert.Len(t, tr.PopAll("flow-2"), 1)
}

func TestTracker_PopAll_UnknownFlow(t *testing.T) {
	tr := New()
	assert.Nil(t, tr.PopAll("missing"))
}

func TestTracker_Clear_DoubleClearIsNoOp(t *testing.T) {
	tr := New()

	tr.Register("flow-1", MessageRef{ChatID: "c1", MessageID: "m1"})
	tr.Clear("flow-1")
	tr.Clear("flow-1")
	tr.Clear("never-registered")

	assert.Nil(t, tr.PopAll("flow-1"))
}

func TestTracker_ConcurrentRegister(t *testing.T) {
	tr := New()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.Register("flow-1", MessageRef{ChatID: "c1", MessageID: fmt.Sprintf("m%d", i)})
		}(i)
	}
	wg.Wait()

	assert.Len(t, tr.PopAll("flow-1"), n)
}
