package flag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockFlags struct{ mock.Mock }

func (m *mockFlags) IsEnabled(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func TestMemoryStore_MissingIsDisabled(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(map[string]bool{"agent.seo_agent.enabled": true})

	on, err := s.IsEnabled(ctx, "agent.seo_agent.enabled")
	require.NoError(t, err)
	assert.True(t, on)

	on, err = s.IsEnabled(ctx, "agent.legal_agent.enabled")
	require.NoError(t, err)
	assert.False(t, on)

	s.Delete("agent.seo_agent.enabled")
	on, _ = s.IsEnabled(ctx, "agent.seo_agent.enabled")
	assert.False(t, on)
}

func TestMemoryStore_SetAndKeys(t *testing.T) {
	s := NewMemoryStore(nil)
	s.Set("b", true)
	s.Set("a", false)
	assert.Equal(t, []string{"a", "b"}, s.Keys())
}

func TestCachedStore_CachesHits(t *testing.T) {
	ctx := context.Background()
	m := &mockFlags{}
	m.On("IsEnabled", ctx, "k").Return(true, nil).Once()

	c := NewCachedStore(m, 8, time.Minute)
	for i := 0; i < 3; i++ {
		on, err := c.IsEnabled(ctx, "k")
		require.NoError(t, err)
		assert.True(t, on)
	}
	m.AssertExpectations(t)
}

func TestCachedStore_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	m := &mockFlags{}
	m.On("IsEnabled", ctx, "k").Return(false, errors.New("db down")).Once()
	m.On("IsEnabled", ctx, "k").Return(true, nil).Once()

	c := NewCachedStore(m, 8, time.Minute)
	_, err := c.IsEnabled(ctx, "k")
	assert.Error(t, err)

	on, err := c.IsEnabled(ctx, "k")
	require.NoError(t, err)
	assert.True(t, on)
	m.AssertExpectations(t)
}

func TestCachedStore_Invalidate(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore(map[string]bool{"k": true})
	c := NewCachedStore(inner, 0, 0)

	on, _ := c.IsEnabled(ctx, "k")
	assert.True(t, on)

	inner.Set("k", false)
	on, _ = c.IsEnabled(ctx, "k")
	assert.True(t, on, "stale value served from cache")

	c.Invalidate("k")
	on, _ = c.IsEnabled(ctx, "k")
	assert.False(t, on)

	inner.Set("k", true)
	c.Invalidate("")
	on, _ = c.IsEnabled(ctx, "k")
	assert.True(t, on)
}
