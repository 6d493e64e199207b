package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from PayoutStatus
		to   PayoutStatus
		want bool
	}{
		{PayoutStatusPending, PayoutStatusInTransit, true},
		{PayoutStatusPending, PayoutStatusCompleted, true},
		{PayoutStatusPending, PayoutStatusFailed, true},
		{PayoutStatusPending, PayoutStatusCancelled, true},
		{PayoutStatusInTransit, PayoutStatusCompleted, true},
		{PayoutStatusInTransit, PayoutStatusFailed, true},
		{PayoutStatusInTransit, PayoutStatusCancelled, true},
		{PayoutStatusCompleted, PayoutStatusRefunded, true},

		{PayoutStatusInTransit, PayoutStatusPending, false},
		{PayoutStatusCompleted, PayoutStatusInTransit, false},
		{PayoutStatusCompleted, PayoutStatusFailed, false},
		{PayoutStatusFailed, PayoutStatusCompleted, false},
		{PayoutStatusCancelled, PayoutStatusInTransit, false},
		{PayoutStatusRefunded, PayoutStatusCompleted, false},
		{PayoutStatusPending, PayoutStatusRefunded, false},
		{PayoutStatusInTransit, PayoutStatusRefunded, false},
	}

	for _, tc := range tests {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.want, CanTransition(tc.from, tc.to))
		})
	}
}

func TestPayoutStatus_IsTerminal(t *testing.T) {
	assert.False(t, PayoutStatusPending.IsTerminal())
	assert.False(t, PayoutStatusInTransit.IsTerminal())
	assert.True(t, PayoutStatusCompleted.IsTerminal())
	assert.True(t, PayoutStatusFailed.IsTerminal())
	assert.True(t, PayoutStatusCancelled.IsTerminal())
	assert.True(t, PayoutStatusRefunded.IsTerminal())
}

func TestPayout_NetAmount(t *testing.T) {
	p := Payout{Amount: 10000, FeeAmount: 250}
	assert.Equal(t, int64(9750), p.NetAmount())
}
