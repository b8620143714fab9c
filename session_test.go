package main

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentIDRoundTrip(t *testing.T) {
	tests := []ComponentID{
		{Purpose: "ppow", Target: "123456789", Action: "start"},
		{Purpose: "psrv", Target: "987654321", Action: "sel"},
		{Purpose: "psrv", Target: "1", Action: ""},
	}
	for _, cid := range tests {
		parsed, err := ParseComponentID(cid.Encode())
		require.NoError(t, err, "encoded %q", cid.Encode())
		assert.Equal(t, cid, parsed)
	}
}

func TestParseComponentIDMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"ppow",
		"ppow:123",
		":123:start",
		"ppow::start",
	} {
		_, err := ParseComponentID(raw)
		assert.Error(t, err, "input %q", raw)
	}
}

func TestParseComponentIDActionMayContainColons(t *testing.T) {
	cid, err := ParseComponentID("psrv:42:a:b:c")
	require.NoError(t, err)
	assert.Equal(t, "a:b:c", cid.Action)
}

func TestSessionExpiryDisablesOnce(t *testing.T) {
	var disabled atomic.Int32
	s := OpenSession("t-expire", "u1", 20*time.Millisecond, nil, func() error {
		disabled.Add(1)
		return nil
	})

	require.Eventually(t, s.IsClosed, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), disabled.Load())

	// A second expire is a no-op.
	s.expire()
	assert.Equal(t, int32(1), disabled.Load())

	_, ok := GetSession("t-expire")
	assert.False(t, ok)
	assert.False(t, s.Touch())
}

func TestSessionTouchExtendsWindow(t *testing.T) {
	s := OpenSession("t-touch", "u1", 50*time.Millisecond, nil, func() error { return nil })
	defer s.Close()

	for i := 0; i < 3; i++ {
		time.Sleep(30 * time.Millisecond)
		require.True(t, s.Touch(), "session expired despite activity")
	}
	assert.False(t, s.IsClosed())
}

func TestSessionCloseSkipsDisable(t *testing.T) {
	var disabled atomic.Int32
	s := OpenSession("t-close", "u1", 20*time.Millisecond, nil, func() error {
		disabled.Add(1)
		return nil
	})

	s.Close()
	assert.True(t, s.IsClosed())
	assert.False(t, s.Touch())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), disabled.Load())

	_, ok := GetSession("t-close")
	assert.False(t, ok)
}

func TestSessionDataRoundTrip(t *testing.T) {
	state := &PowerState{ServerID: "abc123"}
	s := OpenSession("t-data", "u1", time.Minute, state, nil)
	defer s.Close()

	got, ok := GetSession("t-data")
	require.True(t, ok)
	ps, ok := got.Data.(*PowerState)
	require.True(t, ok)
	assert.Equal(t, "abc123", ps.ServerID)
}
