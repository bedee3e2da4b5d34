package eventpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetReturnsFalseWhenExhausted(t *testing.T) {
	p := New(2, 1, nil, nil)

	ev1, ok := p.Get(0)
	require.True(t, ok)
	require.NotNil(t, ev1)

	ev2, ok := p.Get(0)
	require.True(t, ok)
	require.NotNil(t, ev2)

	_, ok = p.Get(0)
	require.False(t, ok)
}

func TestGetPrefersLocalThenStealsRemote(t *testing.T) {
	p := New(2, 2, nil, nil)

	// Drain domain 0's single local event.
	_, ok := p.Get(0)
	require.True(t, ok)

	// Domain 0 is empty now, so a further Get(0) must steal from domain 1.
	ev, ok := p.Get(0)
	require.True(t, ok)
	require.NotNil(t, ev)

	_, ok = p.Get(0)
	require.False(t, ok, "both domains should be empty now")
}

func TestPutReturnsEventToLocalDomain(t *testing.T) {
	p := New(1, 1, nil, nil)

	ev, ok := p.Get(0)
	require.True(t, ok)
	require.Equal(t, 0, p.Available())

	ev.SetEventNumber(99)
	p.Put(ev, 0)
	require.Equal(t, 1, p.Available())

	back, ok := p.Get(0)
	require.True(t, ok)
	require.Equal(t, uint64(0), back.EventNumber(), "Put must Reset the event")
}

func TestDomainsReportsConfiguredCount(t *testing.T) {
	p := New(8, 4, nil, nil)
	require.Equal(t, 4, p.Domains())
}
