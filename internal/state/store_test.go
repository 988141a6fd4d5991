package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetGetDelete(t *testing.T) {
	s := New(zerolog.Nop())

	s.Set(1, BulkUpdatePayload{ChannelID: -100, ChannelName: "news"})
	assert.True(t, s.Has(CategoryBulkUpdate, 1))
	assert.False(t, s.Has(CategorySingleUpdate, 1))
	assert.False(t, s.Has(CategoryBulkUpdate, 2))

	p, ok := s.Get(CategoryBulkUpdate, 1)
	require.True(t, ok)
	assert.Equal(t, int64(-100), p.(BulkUpdatePayload).ChannelID)

	assert.True(t, s.Delete(CategoryBulkUpdate, 1))
	assert.False(t, s.Delete(CategoryBulkUpdate, 1))
	_, ok = s.Get(CategoryBulkUpdate, 1)
	assert.False(t, ok)
}

func TestStore_SetOverwritesSameCategory(t *testing.T) {
	s := New(zerolog.Nop())
	s.Set(1, DeleteLinksPayload{ChannelID: 1})
	s.Set(1, DeleteLinksPayload{ChannelID: 2})

	assert.Equal(t, 1, s.Len())
	p, ok := Lookup[DeleteLinksPayload](s, 1)
	require.True(t, ok)
	assert.Equal(t, int64(2), p.ChannelID)
}

func TestStore_CategoriesAreIndependent(t *testing.T) {
	s := New(zerolog.Nop())
	s.Set(1, DeleteLinksPayload{ChannelID: 1})
	s.Set(1, SingleUpdatePayload{UserID: 5, ChannelID: 1})

	assert.Equal(t, 2, s.Len())
	s.Delete(CategorySingleUpdate, 1)
	assert.True(t, s.Has(CategoryDeleteLinks, 1))
}

func TestStore_UnknownCategoryIsAbsent(t *testing.T) {
	s := New(zerolog.Nop())
	_, ok := s.Get(Category("scan"), 1)
	assert.False(t, ok)
}

func TestLookup_Typed(t *testing.T) {
	s := New(zerolog.Nop())
	_, ok := Lookup[SingleUpdatePayload](s, 9)
	assert.False(t, ok)

	s.Set(9, SingleUpdatePayload{UserID: 3, ChannelID: 4, ReplacesDefault: true})
	p, ok := Lookup[SingleUpdatePayload](s, 9)
	require.True(t, ok)
	assert.True(t, p.ReplacesDefault)
}

func TestStore_ExpireIdle(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New(zerolog.Nop(), WithClock(func() time.Time { return now }))

	s.Set(1, DeleteLinksPayload{})
	s.Set(2, DeleteLinksPayload{})

	now = now.Add(20 * time.Minute)
	_, _ = s.Get(CategoryDeleteLinks, 2) // touch

	now = now.Add(15 * time.Minute)
	assert.Equal(t, 1, s.Expire(30*time.Minute))
	assert.False(t, s.Has(CategoryDeleteLinks, 1))
	assert.True(t, s.Has(CategoryDeleteLinks, 2))
}

func TestStore_SizeObserver(t *testing.T) {
	var sizes []int
	s := New(zerolog.Nop(), WithSizeObserver(func(n int) { sizes = append(sizes, n) }))
	s.Set(1, DeleteLinksPayload{})
	s.Set(2, DeleteLinksPayload{})
	s.Delete(CategoryDeleteLinks, 1)
	assert.Equal(t, []int{1, 2, 1}, sizes)
}

func TestStore_ConcurrentAdmins(t *testing.T) {
	s := New(zerolog.Nop())
	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s.Set(id, SingleUpdatePayload{UserID: id})
			p, ok := Lookup[SingleUpdatePayload](s, id)
			if assert.True(t, ok) {
				assert.Equal(t, id, p.UserID)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}

func TestStore_RunJanitorStopsOnCancel(t *testing.T) {
	s := New(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunJanitor(ctx, time.Minute, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestBulkUpdatePayload_Row(t *testing.T) {
	p := BulkUpdatePayload{Rows: []SubscriberRow{{Index: 1, UserID: 10}, {Index: 2, UserID: 20}}}
	r, ok := p.Row(2)
	require.True(t, ok)
	assert.Equal(t, int64(20), r.UserID)
	_, ok = p.Row(0)
	assert.False(t, ok)
	_, ok = p.Row(3)
	assert.False(t, ok)
}
