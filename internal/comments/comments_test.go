package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{"trimmed", "  item shipped \n", "item shipped", nil},
		{"empty", "", "", ErrCommentEmpty},
		{"whitespace only", " \t\n", "", ErrCommentEmpty},
		{"at limit", strings.Repeat("a", MaxLength), strings.Repeat("a", MaxLength), nil},
		{"multibyte at limit", strings.Repeat("π", MaxLength), strings.Repeat("π", MaxLength), nil},
		{"over limit", strings.Repeat("a", MaxLength+1), "", ErrCommentTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeText(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransitionText(t *testing.T) {
	assert.Equal(t, "User alice has marked the transaction as Paid", TransitionText("alice", "Paid"))
}

func TestService_PostAndListWithAlias(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	ctx := context.Background()

	_, err := svc.Post(ctx, "EP1", "alice", "  hello bob ")
	require.NoError(t, err)
	_, err = svc.Post(ctx, "EP1", "bob", "hi alice")
	require.NoError(t, err)
	sys, err := svc.PostSystem(ctx, "EP1", "bob", TransitionText("bob", "Fulfilled"))
	require.NoError(t, err)
	assert.True(t, sys.System)
	assert.True(t, strings.HasPrefix(sys.ID, "cmt_"))

	list, err := svc.List(ctx, "EP1", "alice")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, YouAlias, list[0].Author)
	assert.Equal(t, "hello bob", list[0].Text)
	assert.Equal(t, "bob", list[1].Author)
	assert.Equal(t, "bob", list[2].Author)

	// the alias is a view concern only
	raw, err := store.List(ctx, "EP1", 0)
	require.NoError(t, err)
	assert.Equal(t, "alice", raw[0].Author)
}

func TestService_PostRejectsInvalidText(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store)

	_, err := svc.Post(context.Background(), "EP1", "alice", "   ")
	assert.ErrorIs(t, err, ErrCommentEmpty)

	list, err := store.List(context.Background(), "EP1", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

type failingStore struct{ MemoryStore }

var errDown = errors.New("down")

func (f *failingStore) Add(context.Context, *Comment) error { return errDown }

func TestService_PostSurfacesStoreError(t *testing.T) {
	svc := NewService(&failingStore{})
	_, err := svc.Post(context.Background(), "EP1", "alice", "hello")
	assert.ErrorIs(t, err, errDown)
}

func TestMemoryStore_OrderAndLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Add(ctx, &Comment{ID: "c2", OrderID: "EP1", CreatedAt: base.Add(2 * time.Second)}))
	require.NoError(t, store.Add(ctx, &Comment{ID: "c1", OrderID: "EP1", CreatedAt: base.Add(time.Second)}))
	require.NoError(t, store.Add(ctx, &Comment{ID: "c3", OrderID: "EP1", CreatedAt: base.Add(3 * time.Second)}))
	require.NoError(t, store.Add(ctx, &Comment{ID: "x", OrderID: "EP2", CreatedAt: base}))

	list, err := store.List(ctx, "EP1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c1", list[0].ID)
	assert.Equal(t, "c2", list[1].ID)
}

func TestService_LongThreadKeepsNewest(t *testing.T) {
	svc := NewService(NewMemoryStore())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	ctx := context.Background()

	for i := 0; i < DefaultListLimit+5; i++ {
		_, err := svc.Post(ctx, "EP1", "alice", fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}
	_, err := svc.PostSystem(ctx, "EP1", "bob", TransitionText("bob", "Fulfilled"))
	require.NoError(t, err)

	list, err := svc.List(ctx, "EP1", "alice")
	require.NoError(t, err)
	require.Len(t, list, DefaultListLimit)
	assert.Equal(t, "msg 6", list[0].Text, "oldest entries fall off first")
	last := list[len(list)-1]
	assert.True(t, last.System)
	assert.Equal(t, TransitionText("bob", "Fulfilled"), last.Text)
}

func TestLatest(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	thread := []*Comment{
		{ID: "c", CreatedAt: base.Add(2 * time.Second)},
		{ID: "a", CreatedAt: base},
		{ID: "b", CreatedAt: base.Add(time.Second)},
	}

	got := Latest(thread, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)

	assert.Len(t, Latest(thread, 0), 3, "no limit keeps the whole thread")
}
