package leads

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRepository_DedupesByPhone(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	first, created, err := repo.CreateIfAbsent(ctx, sampleFields("999"), ExtraFields{{Key: "town", Value: "Tampines"}})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := repo.CreateIfAbsent(ctx, sampleFields("999"), ExtraFields{{Key: "town", Value: "Bedok"}})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.Len())
	assert.Equal(t, 1, repo.DetailCount(first))

	view, err := repo.FetchWithDetails(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "Tampines", view.String("town"))
}

func TestInMemoryRepository_ConcurrentSamePhone(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, _, err := repo.CreateIfAbsent(ctx, sampleFields("555"), nil)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, repo.Len())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestInMemoryRepository_RoundTrip(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	sub, err := ParseSubmission([]byte(`{"form_type":"hdb","source_url":"https://x.test","ip":"1.2.3.4","name":"A","phone_number":"999","email":"a@x.test","town":"Tampines","flat":["4A","5I"],"user_otp":"1","wp_otp":"1","lead_id":"x"}`))
	require.NoError(t, err)

	id, _, err := repo.CreateIfAbsent(ctx, sub.Fields, sub.Extra)
	require.NoError(t, err)

	view, err := repo.FetchWithDetails(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, view.String("id"))
	assert.Equal(t, "hdb", view.String("form_type"))
	assert.Equal(t, "https://x.test", view.String("source_url"))
	assert.Equal(t, "1.2.3.4", view.String("ip"))
	assert.Equal(t, "A", view.String("name"))
	assert.Equal(t, "999", view.String("phone_number"))
	assert.Equal(t, "a@x.test", view.String("email"))
	assert.Equal(t, "Tampines", view.String("town"))
	assert.Equal(t, "4A| 5I", view.String("flat"))
	for _, reserved := range []string{KeyUserOTP, KeyWPOTP} {
		_, ok := view[reserved]
		assert.False(t, ok)
	}
	_, ok := view[KeyLeadID]
	assert.False(t, ok)
}

func TestInMemoryRepository_Flags(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	id, _, err := repo.CreateIfAbsent(ctx, sampleFields("1"), nil)
	require.NoError(t, err)

	require.NoError(t, repo.MarkSent(ctx, id))
	require.NoError(t, repo.MarkVerified(ctx, id))
	view, err := repo.FetchWithDetails(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, true, view["is_sent"])
	assert.Equal(t, true, view["is_verified"])

	assert.True(t, errors.Is(repo.MarkSent(ctx, "missing"), ErrLeadNotFound))
}

func TestInMemoryRepository_CancelledContext(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := repo.CreateIfAbsent(ctx, sampleFields("1"), nil)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Equal(t, 0, repo.Len())
}

func TestInMemoryRepository_DropsReservedKeysPassedDirectly(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	id, _, err := repo.CreateIfAbsent(ctx, sampleFields("1"), ExtraFields{
		{Key: KeyUserOTP, Value: "123456"},
		{Key: "town", Value: "Tampines"},
		{Key: KeyLeadID, Value: "x"},
		{Key: KeyWPOTP, Value: "123456"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.DetailCount(id))

	view, err := repo.FetchWithDetails(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Tampines", view.String("town"))
	assert.NotContains(t, view, KeyUserOTP)
	assert.NotContains(t, view, KeyWPOTP)
	assert.NotContains(t, view, KeyLeadID)
}
