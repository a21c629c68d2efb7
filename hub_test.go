package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receivedEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func setupHubServer(t *testing.T) (*TweetStore, *FanoutHub, *httptest.Server) {
	store := setupTestStore(t)

	hub := NewFanoutHub(store, 5)
	go hub.Run()
	t.Cleanup(hub.Stop)

	server := NewServer(hub, store, "")
	ts := httptest.NewServer(server.Routes())
	t.Cleanup(ts.Close)

	return store, hub, ts
}

func dialViewer(t *testing.T, ts *httptest.Server) *websocket.Conn {
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForEvent reads envelopes until the wanted event arrives, skipping
// interleaved users/time broadcasts.
func waitForEvent(t *testing.T, conn *websocket.Conn, event string) receivedEnvelope {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	conn.SetReadDeadline(deadline)

	for time.Now().Before(deadline) {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var envelope receivedEnvelope
		require.NoError(t, json.Unmarshal(data, &envelope))
		if envelope.Event == event {
			return envelope
		}
	}

	t.Fatalf("event %q never arrived", event)
	return receivedEnvelope{}
}

func sendCatchup(t *testing.T, conn *websocket.Conn, kind string, date int64) {
	t.Helper()
	request := ClientEnvelope{
		Event: EVENT_GET_TWEETS,
		Data:  CatchupRequest{Type: kind, Date: date},
	}
	require.NoError(t, conn.WriteJSON(request))
}

func TestFanoutHub_ViewerCount(t *testing.T) {
	_, _, ts := setupHubServer(t)

	first := dialViewer(t, ts)
	envelope := waitForEvent(t, first, EVENT_USERS)
	var users UsersPayload
	require.NoError(t, json.Unmarshal(envelope.Data, &users))
	assert.Equal(t, 1, users.Count)

	second := dialViewer(t, ts)
	envelope = waitForEvent(t, second, EVENT_USERS)
	require.NoError(t, json.Unmarshal(envelope.Data, &users))
	assert.Equal(t, 2, users.Count)

	// The already connected viewer sees the bump too.
	envelope = waitForEvent(t, first, EVENT_USERS)
	require.NoError(t, json.Unmarshal(envelope.Data, &users))
	assert.Equal(t, 2, users.Count)

	second.Close()
	envelope = waitForEvent(t, first, EVENT_USERS)
	require.NoError(t, json.Unmarshal(envelope.Data, &users))
	assert.Equal(t, 1, users.Count)
}

func TestFanoutHub_CatchupNewerFirstContact(t *testing.T) {
	store, _, ts := setupHubServer(t)

	insertTestTweet(t, store, "A")
	insertTestTweet(t, store, "B")
	insertTestTweet(t, store, "C")

	conn := dialViewer(t, ts)
	waitForEvent(t, conn, EVENT_USERS)

	sendCatchup(t, conn, CATCHUP_NEWER, 0)

	envelope := waitForEvent(t, conn, EVENT_NEW_TWEETS)
	var records []TweetRecordModel
	require.NoError(t, json.Unmarshal(envelope.Data, &records))
	require.Len(t, records, 3)
	assert.Equal(t, "A", records[0].TweetID)
	assert.Equal(t, "C", records[2].TweetID)
}

func TestFanoutHub_CatchupNewerWithCursor(t *testing.T) {
	store, _, ts := setupHubServer(t)

	a := insertTestTweet(t, store, "A")
	insertTestTweet(t, store, "B")

	conn := dialViewer(t, ts)
	waitForEvent(t, conn, EVENT_USERS)

	sendCatchup(t, conn, CATCHUP_NEWER, a.ReceivedAt)

	envelope := waitForEvent(t, conn, EVENT_NEW_TWEETS)
	var records []TweetRecordModel
	require.NoError(t, json.Unmarshal(envelope.Data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "B", records[0].TweetID)
}

func TestFanoutHub_CatchupOlderPagination(t *testing.T) {
	store, _, ts := setupHubServer(t)

	// Page size is 5; 12 records leave 7 behind the first-contact page, one
	// full backward page and one short terminal page.
	for _, id := range []string{"t01", "t02", "t03", "t04", "t05", "t06", "t07", "t08", "t09", "t10", "t11", "t12"} {
		insertTestTweet(t, store, id)
	}

	conn := dialViewer(t, ts)
	waitForEvent(t, conn, EVENT_USERS)

	// First contact pins the oldest cursor at the newest page's head.
	sendCatchup(t, conn, CATCHUP_NEWER, 0)
	waitForEvent(t, conn, EVENT_NEW_TWEETS)

	sendCatchup(t, conn, CATCHUP_OLDER, 0)
	envelope := waitForEvent(t, conn, EVENT_OLD_TWEETS)
	var page OldTweetsPayload
	require.NoError(t, json.Unmarshal(envelope.Data, &page))
	require.Len(t, page.Tweets, 5)
	assert.False(t, page.End)
	// Newest first.
	assert.Equal(t, "t07", page.Tweets[0].TweetID)
	assert.Equal(t, "t03", page.Tweets[4].TweetID)

	sendCatchup(t, conn, CATCHUP_OLDER, 0)
	envelope = waitForEvent(t, conn, EVENT_OLD_TWEETS)
	require.NoError(t, json.Unmarshal(envelope.Data, &page))
	require.Len(t, page.Tweets, 2)
	assert.True(t, page.End)
	assert.Equal(t, "t01", page.Tweets[1].TweetID)
}

func TestFanoutHub_LiveBroadcast(t *testing.T) {
	store, hub, ts := setupHubServer(t)

	conn := dialViewer(t, ts)
	waitForEvent(t, conn, EVENT_USERS)

	record := insertTestTweet(t, store, "live")
	hub.BroadcastTweet(record)

	envelope := waitForEvent(t, conn, EVENT_NEW_TWEETS)
	var pushed TweetRecordModel
	require.NoError(t, json.Unmarshal(envelope.Data, &pushed))
	assert.Equal(t, "live", pushed.TweetID)
	assert.Equal(t, record.ReceivedAt, pushed.ReceivedAt)
}

func TestFanoutHub_DeleteBroadcast(t *testing.T) {
	_, hub, ts := setupHubServer(t)

	conn := dialViewer(t, ts)
	waitForEvent(t, conn, EVENT_USERS)

	hub.BroadcastDelete("gone")

	envelope := waitForEvent(t, conn, EVENT_DELETE)
	var payload DeletePayload
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, "gone", payload.ID)
}

func TestServer_AdminDelete(t *testing.T) {
	store, _, ts := setupHubServer(t)

	insertTestTweet(t, store, "doomed")

	conn := dialViewer(t, ts)
	waitForEvent(t, conn, EVENT_USERS)

	request, err := http.NewRequest("DELETE", ts.URL+"/admin/tweets/doomed", nil)
	require.NoError(t, err)
	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	defer response.Body.Close()
	assert.Equal(t, http.StatusOK, response.StatusCode)

	envelope := waitForEvent(t, conn, EVENT_DELETE)
	var payload DeletePayload
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, "doomed", payload.ID)

	count, err := store.TweetCount()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	t.Run("AbsentIdIsNoOp", func(t *testing.T) {
		request, err := http.NewRequest("DELETE", ts.URL+"/admin/tweets/doomed", nil)
		require.NoError(t, err)
		response, err := http.DefaultClient.Do(request)
		require.NoError(t, err)
		defer response.Body.Close()
		assert.Equal(t, http.StatusOK, response.StatusCode)
	})
}

func TestServer_Healthz(t *testing.T) {
	_, _, ts := setupHubServer(t)

	response, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer response.Body.Close()
	assert.Equal(t, http.StatusOK, response.StatusCode)
}

func TestViewerCatchup_CursorsHoldWhenQueueFull(t *testing.T) {
	store := setupTestStore(t)
	a := insertTestTweet(t, store, "A")
	insertTestTweet(t, store, "B")
	c := insertTestTweet(t, store, "C")

	hub := NewFanoutHub(store, 5)
	viewer := NewViewer(hub, nil)

	fillQueue := func(t *testing.T) {
		t.Helper()
		for i := 0; i < viewerQueueSize; i++ {
			require.True(t, viewer.enqueue([]byte("filler")))
		}
	}
	drainQueue := func() {
		for len(viewer.send) > 0 {
			<-viewer.send
		}
	}

	t.Run("Newer", func(t *testing.T) {
		fillQueue(t)
		viewer.catchupNewer(CatchupRequest{Type: CATCHUP_NEWER})

		// The page was dropped, a retry must still see it from the start.
		viewer.mu.Lock()
		assert.Zero(t, viewer.cursorNewest)
		assert.Zero(t, viewer.cursorOldest)
		viewer.mu.Unlock()

		drainQueue()
		viewer.catchupNewer(CatchupRequest{Type: CATCHUP_NEWER})

		viewer.mu.Lock()
		assert.Equal(t, c.ReceivedAt, viewer.cursorNewest)
		assert.Equal(t, a.ReceivedAt, viewer.cursorOldest)
		viewer.mu.Unlock()
	})

	t.Run("Older", func(t *testing.T) {
		viewer.mu.Lock()
		viewer.cursorOldest = c.ReceivedAt
		viewer.mu.Unlock()

		fillQueue(t)
		viewer.catchupOlder(CatchupRequest{Type: CATCHUP_OLDER})

		viewer.mu.Lock()
		assert.Equal(t, c.ReceivedAt, viewer.cursorOldest)
		viewer.mu.Unlock()

		drainQueue()
		viewer.catchupOlder(CatchupRequest{Type: CATCHUP_OLDER})

		viewer.mu.Lock()
		assert.Equal(t, a.ReceivedAt, viewer.cursorOldest)
		viewer.mu.Unlock()
	})
}
