package saga

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardChainIsStrict(t *testing.T) {
	assert.True(t, CanTransition(StateStarted, StateStockVerification))
	assert.True(t, CanTransition(StateOrderConfirmation, StateConfirmed))

	// No skipping and no going back.
	assert.False(t, CanTransition(StateStarted, StateStockVerified))
	assert.False(t, CanTransition(StateStockVerified, StateStockVerification))
	assert.False(t, CanTransition(StatePaymentCompleted, StatePaymentProcessing))
}

func TestAnyNonTerminalCanCancel(t *testing.T) {
	for s := StateStarted; s < StateConfirmed; s++ {
		assert.True(t, CanTransition(s, StateCancelled), s.String())
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	assert.False(t, CanTransition(StateConfirmed, StateCancelled))
	assert.False(t, CanTransition(StateCancelled, StateStarted))
	assert.False(t, CanTransition(StateCancelled, StateCancelled))
	assert.True(t, StateConfirmed.Terminal())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StatePaymentProcessing.Terminal())
}

func TestParseStateRoundTrip(t *testing.T) {
	for s := StateStarted; s <= StateCancelled; s++ {
		parsed, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseState("NOT_A_STATE")
	assert.Error(t, err)
}

func TestRecordTransitionRejectsIllegalMove(t *testing.T) {
	rec := &Record{Current: StateStarted}
	require.NoError(t, rec.Transition(StateStockVerification))
	assert.Error(t, rec.Transition(StatePaymentProcessing))
	assert.Equal(t, StateStockVerification, rec.Current)
}
