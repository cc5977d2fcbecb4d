package sales

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]Status{
		{StatusNew, StatusReadyToPrepare},
		{StatusReadyToPrepare, StatusReadyToShip},
		{StatusReadyToShip, StatusShipped},
		{StatusShipped, StatusInvoiced},
	}
	for _, pair := range allowed {
		require.True(t, CanTransition(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}

	rejected := [][2]Status{
		{StatusNew, StatusShipped},             // skip
		{StatusShipped, StatusReadyToShip},     // regress
		{StatusInvoiced, StatusNew},            // terminal
		{StatusReadyToShip, StatusReadyToShip}, // self
	}
	for _, pair := range rejected {
		require.False(t, CanTransition(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusNew, StatusReadyToPrepare, StatusReadyToShip, StatusShipped, StatusInvoiced} {
		require.True(t, s.Valid())
	}
	require.False(t, Status("DRAFT").Valid())
}
