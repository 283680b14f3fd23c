package artifact

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Policy
	}{
		{"", Never},
		{"never", Never},
		{"on_failure", OnFailure},
		{"always", Always},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParsePolicy("sometimes")
	assert.ErrorContains(t, err, "unknown artifact policy")
}

func TestPolicyApplies(t *testing.T) {
	t.Parallel()

	assert.False(t, Never.Applies(false))
	assert.False(t, Never.Applies(true))
	assert.False(t, OnFailure.Applies(false))
	assert.True(t, OnFailure.Applies(true))
	assert.True(t, Always.Applies(false))
	assert.True(t, Always.Applies(true))
}

type fakeStore struct {
	uploads int
	err     error
}

func (s *fakeStore) Upload(_ context.Context, _ string, _ []string) error {
	s.uploads++
	return s.err
}

func TestCollector_PolicyGating(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	c := NewCollector(store)
	ctx := context.Background()

	c.Collect(ctx, "job", Never, true, []string{"logs/"})
	assert.Equal(t, 0, store.uploads)

	c.Collect(ctx, "job", OnFailure, false, []string{"logs/"})
	assert.Equal(t, 0, store.uploads)

	c.Collect(ctx, "job", OnFailure, true, []string{"logs/"})
	assert.Equal(t, 1, store.uploads)

	c.Collect(ctx, "job", Always, false, []string{"logs/"})
	assert.Equal(t, 2, store.uploads)

	c.Collect(ctx, "job", Always, false, nil)
	assert.Equal(t, 2, store.uploads, "no paths means nothing to collect")
}

func TestCollector_SwallowsStoreErrors(t *testing.T) {
	t.Parallel()

	store := &fakeStore{err: errors.New("storage full")}
	c := NewCollector(store)

	// Must not panic or surface the error.
	c.Collect(context.Background(), "job", Always, false, []string{"logs/"})
	assert.Equal(t, 1, store.uploads)
}

func TestCollector_NilStoreDisablesCollection(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	c.Collect(context.Background(), "job", Always, true, []string{"logs/"})

	var nilCollector *Collector
	nilCollector.Collect(context.Background(), "job", Always, true, []string{"logs/"})
}
