package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func orderIn(phase string) *Order {
	return &Order{ID: "ord-1", CurrentPhase: phase}
}

func TestCanTransitionForwardPath(t *testing.T) {
	steps := []struct {
		from, to string
	}{
		{PhaseDraft, PhaseConfiguration},
		{PhaseConfiguration, PhaseApproval},
		{PhaseApproval, PhaseProduction},
		{PhaseProduction, PhaseQualityControl},
		{PhaseQualityControl, PhasePackaging},
		{PhasePackaging, PhaseShipping},
		{PhaseShipping, PhaseDelivered},
	}
	for _, s := range steps {
		assert.True(t, orderIn(s.from).CanTransition(s.to), "%s -> %s", s.from, s.to)
	}
}

func TestCanTransitionRework(t *testing.T) {
	// 质检不合格返工
	assert.True(t, orderIn(PhaseQualityControl).CanTransition(PhaseProduction))
	// 反向不允许
	assert.False(t, orderIn(PhasePackaging).CanTransition(PhaseQualityControl))
}

func TestCanTransitionRejectsSkips(t *testing.T) {
	assert.False(t, orderIn(PhaseDraft).CanTransition(PhaseProduction))
	assert.False(t, orderIn(PhaseDraft).CanTransition(PhaseApproval))
	assert.False(t, orderIn(PhaseConfiguration).CanTransition(PhaseShipping))
	assert.False(t, orderIn(PhaseProduction).CanTransition(PhaseDelivered))
}

func TestCanTransitionSelfLoop(t *testing.T) {
	assert.False(t, orderIn(PhaseProduction).CanTransition(PhaseProduction))
}

func TestCanTransitionGlobalEdges(t *testing.T) {
	nonTerminal := []string{
		PhaseDraft, PhaseConfiguration, PhaseApproval, PhaseProduction,
		PhaseQualityControl, PhasePackaging, PhaseShipping,
	}
	for _, phase := range nonTerminal {
		assert.True(t, orderIn(phase).CanTransition(PhaseCancelled), "%s -> CANCELLED", phase)
		assert.True(t, orderIn(phase).CanTransition(PhaseOnHold), "%s -> ON_HOLD", phase)
	}
}

func TestCanTransitionTerminalStates(t *testing.T) {
	for _, phase := range []string{PhaseDelivered, PhaseCancelled} {
		assert.False(t, orderIn(phase).CanTransition(PhaseOnHold))
		assert.False(t, orderIn(phase).CanTransition(PhaseCancelled))
		assert.False(t, orderIn(phase).CanTransition(PhaseConfiguration))
	}
}

func TestCanTransitionHoldResume(t *testing.T) {
	o := orderIn(PhaseOnHold)
	o.HoldPhase = PhaseProduction

	// 只能恢复到挂起前阶段
	assert.True(t, o.CanTransition(PhaseProduction))
	assert.False(t, o.CanTransition(PhaseQualityControl))
	assert.False(t, o.CanTransition(PhaseDraft))

	// 挂起中允许取消，不允许再次挂起
	assert.True(t, o.CanTransition(PhaseCancelled))
	assert.False(t, o.CanTransition(PhaseOnHold))
}

func TestMutablePhase(t *testing.T) {
	assert.True(t, MutablePhase(PhaseDraft))
	assert.True(t, MutablePhase(PhaseConfiguration))
	assert.False(t, MutablePhase(PhaseApproval))
	assert.False(t, MutablePhase(PhaseProduction))
	assert.False(t, MutablePhase(PhaseOnHold))
}
