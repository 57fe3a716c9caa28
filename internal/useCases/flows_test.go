package useCases

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReplaceClosesPendingLogin(t *testing.T) {
	r := NewRegistry(discardLogger())
	login := &fakeLogin{}

	r.Set(1, FlowState{Step: StepAwaitingCode, Login: login})
	r.Set(1, FlowState{Step: StepAwaitingJoinTarget})

	assert.Equal(t, 1, login.closeCount())
	st, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, StepAwaitingJoinTarget, st.Step)
}

func TestRegistryCompareAndSetRejectsStale(t *testing.T) {
	r := NewRegistry(discardLogger())
	first := r.Set(1, FlowState{Step: StepConnecting})
	r.Set(1, FlowState{Step: StepIdle})

	_, ok := r.CompareAndSet(1, first, FlowState{Step: StepAwaitingCode})
	assert.False(t, ok)
	assert.False(t, r.DeleteIf(1, first))

	st, _ := r.Get(1)
	assert.Equal(t, StepIdle, st.Step)

	next, ok := r.CompareAndSet(1, st, FlowState{Step: StepAwaitingPhone})
	require.True(t, ok)
	assert.True(t, r.DeleteIf(1, next))
	_, ok = r.Get(1)
	assert.False(t, ok)
}

func TestRegistryDeleteIsIdempotent(t *testing.T) {
	r := NewRegistry(discardLogger())
	login := &fakeLogin{}
	r.Set(1, FlowState{Step: StepAwaitingPassword, Login: login})

	r.Delete(1)
	r.Delete(1)
	r.Delete(2)
	assert.Equal(t, 1, login.closeCount())
}

func TestRegistryCloseReleasesLogins(t *testing.T) {
	r := NewRegistry(discardLogger())
	a, b := &fakeLogin{}, &fakeLogin{}
	r.Set(1, FlowState{Step: StepAwaitingCode, Login: a})
	r.Set(2, FlowState{Step: StepAwaitingPassword, Login: b})
	r.Set(3, FlowState{Step: StepIdle})

	r.Close()
	assert.Equal(t, 1, a.closeCount())
	assert.Equal(t, 1, b.closeCount())
	_, ok := r.Get(1)
	assert.False(t, ok)
}

func TestRegistryUpdateKeepsConcurrentAppends(t *testing.T) {
	r := NewRegistry(discardLogger())
	const n = 64

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Update(1, func(cur FlowState, ok bool) FlowState {
				cur.Step = StepIdle
				cur.Targets = append(append([]string(nil), cur.Targets...), fmt.Sprintf("@c%d", i))
				return cur
			})
		}(i)
	}
	wg.Wait()

	st, ok := r.Get(1)
	require.True(t, ok)
	assert.Len(t, st.Targets, n)
	seen := make(map[string]bool, n)
	for _, target := range st.Targets {
		seen[target] = true
	}
	assert.Len(t, seen, n)
}

func TestRegistryUpdateClosesReplacedLogin(t *testing.T) {
	r := NewRegistry(discardLogger())
	login := &fakeLogin{}
	r.Set(1, FlowState{Step: StepAwaitingCode, Login: login})

	st := r.Update(1, func(cur FlowState, ok bool) FlowState {
		require.True(t, ok)
		assert.Equal(t, StepAwaitingCode, cur.Step)
		return FlowState{Step: StepIdle, Targets: []string{"@news"}}
	})

	assert.Equal(t, 1, login.closeCount())
	assert.Equal(t, []string{"@news"}, st.Targets)
}
