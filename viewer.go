package main

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	viewerQueueSize = 64
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingInterval    = 30 * time.Second
	maxMessageSize  = 1024
)

// Viewer is one connected client. Its catch-up cursors divide already-seen
// history from not-yet-fetched; they belong to this viewer alone and are
// destroyed with it on disconnect.
type Viewer struct {
	id   string
	hub  *FanoutHub
	conn *websocket.Conn
	send chan []byte

	mu           sync.Mutex
	closed       bool
	cursorNewest int64
	cursorOldest int64
}

func NewViewer(hub *FanoutHub, conn *websocket.Conn) *Viewer {
	return &Viewer{
		id:   uuid.New().String(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, viewerQueueSize),
	}
}

// enqueue offers one marshaled envelope to the viewer's bounded queue
// without ever blocking the caller. False means the queue is full or the
// viewer is gone.
func (v *Viewer) enqueue(data []byte) bool {
	if data == nil {
		return true
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false
	}
	select {
	case v.send <- data:
		return true
	default:
		return false
	}
}

// closeSend must only be called by the hub Run loop, once.
func (v *Viewer) closeSend() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed {
		v.closed = true
		close(v.send)
	}
}

func (v *Viewer) advanceNewest(receivedAt int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if receivedAt > v.cursorNewest {
		v.cursorNewest = receivedAt
	}
}

// ReadPump consumes viewer messages until the connection dies, then
// unregisters. Catch-up queries run right here on the viewer's goroutine so
// a slow query only ever suspends its own viewer.
func (v *Viewer) ReadPump() {
	defer func() {
		v.hub.Unregister(v)
		v.conn.Close()
	}()

	v.conn.SetReadLimit(maxMessageSize)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		v.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := v.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Viewer %s read error: %v", v.id, err)
			}
			return
		}

		var msg ClientEnvelope
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Viewer %s sent malformed message: %v", v.id, err)
			continue
		}

		if msg.Event == EVENT_GET_TWEETS {
			v.handleCatchup(msg.Data)
		}
	}
}

// WritePump drains the send queue onto the wire and keeps the connection
// alive with pings.
func (v *Viewer) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case data, ok := <-v.send:
			if !ok {
				v.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := v.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (v *Viewer) handleCatchup(req CatchupRequest) {
	switch req.Type {
	case CATCHUP_OLDER:
		v.catchupOlder(req)
	default:
		v.catchupNewer(req)
	}
}

func (v *Viewer) catchupNewer(req CatchupRequest) {
	records, err := v.hub.store.RangeNewer(req.Date, v.hub.pageSize)
	if err != nil {
		log.Printf("Viewer %s catch-up failed: %v", v.id, err)
		v.enqueue(marshalEnvelope(EVENT_ERROR, map[string]string{"message": "history unavailable"}))
		return
	}
	if records == nil {
		records = []TweetRecordModel{}
	}

	// A page that could not be queued was never seen, the cursors must not
	// move past it.
	if !v.enqueue(marshalEnvelope(EVENT_NEW_TWEETS, records)) {
		return
	}

	if len(records) > 0 {
		v.mu.Lock()
		newest := records[len(records)-1].ReceivedAt
		if newest > v.cursorNewest {
			v.cursorNewest = newest
		}
		if v.cursorOldest == 0 || records[0].ReceivedAt < v.cursorOldest {
			v.cursorOldest = records[0].ReceivedAt
		}
		v.mu.Unlock()
	}
}

func (v *Viewer) catchupOlder(req CatchupRequest) {
	v.mu.Lock()
	before := v.cursorOldest
	v.mu.Unlock()
	if before == 0 {
		before = req.Date
	}
	if before == 0 {
		before = time.Now().UnixMilli()
	}

	records, err := v.hub.store.RangeOlder(before, v.hub.pageSize)
	if err != nil {
		log.Printf("Viewer %s catch-up failed: %v", v.id, err)
		v.enqueue(marshalEnvelope(EVENT_ERROR, map[string]string{"message": "history unavailable"}))
		return
	}
	if records == nil {
		records = []TweetRecordModel{}
	}

	delivered := v.enqueue(marshalEnvelope(EVENT_OLD_TWEETS, OldTweetsPayload{
		Tweets: records,
		End:    len(records) < v.hub.pageSize,
	}))
	if !delivered {
		return
	}

	if len(records) > 0 {
		// Newest-first page, the last entry is the new oldest watermark.
		v.mu.Lock()
		oldest := records[len(records)-1].ReceivedAt
		if v.cursorOldest == 0 || oldest < v.cursorOldest {
			v.cursorOldest = oldest
		}
		v.mu.Unlock()
	}
}
