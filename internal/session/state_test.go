package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthState_Transitions(t *testing.T) {
	s := NewAuthState()
	assert.False(t, s.Authenticated())

	var authCount, discCount atomic.Int32
	unsubAuth := s.OnAuthenticated(func() { authCount.Add(1) })
	s.OnDisconnected(func() { discCount.Add(1) })

	s.SetAuthenticated()
	s.SetAuthenticated()
	assert.True(t, s.Authenticated())
	assert.Equal(t, int32(1), authCount.Load(), "only transitions notify")

	s.SetDisconnected()
	s.SetDisconnected()
	assert.Equal(t, int32(1), discCount.Load())

	unsubAuth()
	s.SetAuthenticated()
	assert.Equal(t, int32(1), authCount.Load(), "unsubscribed")
}

func TestAuthState_WaitAuthenticated(t *testing.T) {
	s := NewAuthState()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.WaitAuthenticated(ctx), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- s.WaitAuthenticated(context.Background()) }()

	s.SetAuthenticated()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitAuthenticated did not return")
	}
}

func TestSession_ResolveContact(t *testing.T) {
	bob := &Contact{Username: "bob"}
	sess := New(nil, &User{Username: "alice", Signing: nil}, NewStaticContacts(bob), nil)

	c, err := sess.ResolveContact(context.Background(), "bob")
	require.NoError(t, err)
	assert.Same(t, bob, c)

	_, err = sess.ResolveContact(context.Background(), "carol")
	assert.ErrorIs(t, err, ErrContactNotFound)
}
