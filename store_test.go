package main

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *TweetStore {

	dbPath := "test_tweetwall.db"

	os.Remove(dbPath)

	store, err := NewTweetStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
		os.Remove(dbPath)
	})

	return store
}

func insertTestTweet(t *testing.T, store *TweetStore, id string) TweetRecordModel {
	record, inserted, err := store.Insert(TweetRecordModel{
		TweetID:      id,
		AuthorID:     "user_" + id,
		AuthorName:   "User " + id,
		AuthorHandle: "user" + id,
		Text:         "tweet " + id,
		RawText:      "tweet " + id,
	})
	require.NoError(t, err)
	require.True(t, inserted)
	return record
}

func TestTweetStore_InsertAndRangeNewer(t *testing.T) {
	store := setupTestStore(t)

	a := insertTestTweet(t, store, "A")
	b := insertTestTweet(t, store, "B")
	c := insertTestTweet(t, store, "C")

	t.Run("MonotonicReceivedAt", func(t *testing.T) {
		assert.Less(t, a.ReceivedAt, b.ReceivedAt)
		assert.Less(t, b.ReceivedAt, c.ReceivedAt)
	})

	t.Run("FirstContactReturnsNewestOldestFirst", func(t *testing.T) {
		records, err := store.RangeNewer(0, 10)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "A", records[0].TweetID)
		assert.Equal(t, "B", records[1].TweetID)
		assert.Equal(t, "C", records[2].TweetID)
	})

	t.Run("FirstContactCappedAtLimit", func(t *testing.T) {
		records, err := store.RangeNewer(0, 2)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "B", records[0].TweetID)
		assert.Equal(t, "C", records[1].TweetID)
	})

	t.Run("StrictlyAfterCursor", func(t *testing.T) {
		records, err := store.RangeNewer(a.ReceivedAt, 10)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "B", records[0].TweetID)
		assert.Equal(t, "C", records[1].TweetID)
	})

	t.Run("CursorAtNewestReturnsNothing", func(t *testing.T) {
		records, err := store.RangeNewer(c.ReceivedAt, 10)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestTweetStore_InsertIdempotent(t *testing.T) {
	store := setupTestStore(t)

	first := insertTestTweet(t, store, "A")

	_, inserted, err := store.Insert(TweetRecordModel{TweetID: "A", Text: "changed text"})
	require.NoError(t, err)
	assert.False(t, inserted)

	records, err := store.RangeNewer(0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, first.ReceivedAt, records[0].ReceivedAt)
	assert.Equal(t, "tweet A", records[0].Text)
}

func TestTweetStore_DeleteRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	a := insertTestTweet(t, store, "A")
	insertTestTweet(t, store, "B")
	c := insertTestTweet(t, store, "C")

	existed, err := store.Delete("B")
	require.NoError(t, err)
	assert.True(t, existed)

	t.Run("GoneFromRangeOlder", func(t *testing.T) {
		records, err := store.RangeOlder(c.ReceivedAt, 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "A", records[0].TweetID)
	})

	t.Run("GoneFromRangeNewer", func(t *testing.T) {
		records, err := store.RangeNewer(a.ReceivedAt, 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "C", records[0].TweetID)
	})

	t.Run("DoubleDeleteIsNoOp", func(t *testing.T) {
		existed, err := store.Delete("B")
		require.NoError(t, err)
		assert.False(t, existed)
	})

	t.Run("DeleteAbsentIsNoOp", func(t *testing.T) {
		existed, err := store.Delete("never_existed")
		require.NoError(t, err)
		assert.False(t, existed)
	})
}

func TestTweetStore_PaginationCompleteness(t *testing.T) {
	store := setupTestStore(t)

	const total = 23
	const pageSize = 5

	for i := 0; i < total; i++ {
		insertTestTweet(t, store, fmt.Sprintf("tweet_%02d", i))
	}

	newest, err := store.RangeNewer(0, 1)
	require.NoError(t, err)
	require.Len(t, newest, 1)

	seen := map[string]bool{newest[0].TweetID: true}
	cursor := newest[0].ReceivedAt

	for {
		page, err := store.RangeOlder(cursor, pageSize)
		require.NoError(t, err)
		for _, record := range page {
			assert.False(t, seen[record.TweetID], "duplicate record %s", record.TweetID)
			seen[record.TweetID] = true
		}
		if len(page) < pageSize {
			break
		}
		cursor = page[len(page)-1].ReceivedAt
	}

	assert.Len(t, seen, total)
}

func TestTweetStore_RetentionEviction(t *testing.T) {
	store := setupTestStore(t)

	insertTestTweet(t, store, "old_1")
	insertTestTweet(t, store, "old_2")
	survivor := insertTestTweet(t, store, "survivor")

	removed, err := store.DeleteOlderThan(survivor.ReceivedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	require.NoError(t, store.Vacuum())

	count, err := store.TweetCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	t.Run("EvictedIdIsReusable", func(t *testing.T) {
		_, inserted, err := store.Insert(TweetRecordModel{TweetID: "old_1", Text: "back"})
		require.NoError(t, err)
		assert.True(t, inserted)
	})

	t.Run("ClockSurvivesReopen", func(t *testing.T) {
		require.NoError(t, store.Close())

		reopened, err := NewTweetStore("test_tweetwall.db")
		require.NoError(t, err)
		t.Cleanup(func() { reopened.Close() })

		record, inserted, err := reopened.Insert(TweetRecordModel{TweetID: "after_reopen"})
		require.NoError(t, err)
		require.True(t, inserted)
		assert.Greater(t, record.ReceivedAt, survivor.ReceivedAt)
	})
}
