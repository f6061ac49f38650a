package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{
		StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusOutForDelivery, StatusDelivered, StatusCancelled,
		StatusReturned, StatusRefunded,
	} {
		assert.True(t, s.Valid(), "%s should be valid", s)
	}
	assert.False(t, Status("unknown").Valid())
	assert.False(t, Status("").Valid())
}

func TestStatus_HappyPath(t *testing.T) {
	path := []Status{
		StatusPending, StatusConfirmed, StatusProcessing,
		StatusShipped, StatusOutForDelivery, StatusDelivered,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, path[i].CanTransition(path[i+1]),
			"%s -> %s should be allowed", path[i], path[i+1])
	}
}

func TestStatus_NoSkipping(t *testing.T) {
	assert.False(t, StatusPending.CanTransition(StatusShipped))
	assert.False(t, StatusConfirmed.CanTransition(StatusDelivered))
	assert.False(t, StatusProcessing.CanTransition(StatusOutForDelivery))
}

func TestStatus_NoBackwardTransitions(t *testing.T) {
	assert.False(t, StatusConfirmed.CanTransition(StatusPending))
	assert.False(t, StatusShipped.CanTransition(StatusProcessing))
	assert.False(t, StatusDelivered.CanTransition(StatusShipped))
}

func TestStatus_TerminalStatesHaveNoExits(t *testing.T) {
	terminals := []Status{StatusDelivered, StatusCancelled, StatusReturned, StatusRefunded}
	all := []Status{
		StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusOutForDelivery, StatusDelivered, StatusCancelled,
		StatusReturned, StatusRefunded,
	}

	for _, from := range terminals {
		assert.True(t, from.Terminal(), "%s should be terminal", from)
		for _, to := range all {
			assert.False(t, from.CanTransition(to), "%s -> %s must be rejected", from, to)
		}
	}
}

func TestStatus_ReturnsAfterShipping(t *testing.T) {
	assert.True(t, StatusShipped.CanTransition(StatusReturned))
	assert.True(t, StatusShipped.CanTransition(StatusRefunded))
	assert.True(t, StatusOutForDelivery.CanTransition(StatusReturned))
	assert.False(t, StatusPending.CanTransition(StatusReturned))
}

func TestStatus_CanCancel(t *testing.T) {
	cancellable := map[Status]bool{
		StatusPending:        true,
		StatusConfirmed:      true,
		StatusProcessing:     true,
		StatusShipped:        false,
		StatusOutForDelivery: false,
		StatusDelivered:      false,
		StatusCancelled:      false,
		StatusReturned:       false,
		StatusRefunded:       false,
	}
	for s, want := range cancellable {
		assert.Equal(t, want, s.CanCancel(), "CanCancel(%s)", s)
	}
}
