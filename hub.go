package main

import (
	"encoding/json"
	"log"
	"time"
)

// ServerEnvelope wraps every server-to-viewer event on the wire.
type ServerEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// ClientEnvelope is the single viewer-to-server message shape.
type ClientEnvelope struct {
	Event string         `json:"event"`
	Data  CatchupRequest `json:"data"`
}

// CatchupRequest asks for a history page. Type is "newer" or "older", Date
// the viewer's cursor in unix millis, zero meaning first contact.
type CatchupRequest struct {
	Type string `json:"type"`
	Date int64  `json:"date"`
}

type UsersPayload struct {
	Count int `json:"count"`
}

type TimePayload struct {
	Now int64 `json:"now"`
}

type DeletePayload struct {
	ID string `json:"id"`
}

// OldTweetsPayload carries one backward history page, newest first. End set
// means the page came up short and there is no more history behind it.
type OldTweetsPayload struct {
	Tweets []TweetRecordModel `json:"tweets"`
	End    bool               `json:"end"`
}

const clockSyncInterval = 5 * time.Second

// FanoutHub owns the set of connected viewers. All registry mutation and all
// broadcasting happen on the Run loop, so the viewer map needs no lock.
// Catch-up queries run on each viewer's own read goroutine against the store
// and only pass through the hub for delivery.
type FanoutHub struct {
	store    *TweetStore
	pageSize int

	viewers    map[*Viewer]bool
	register   chan *Viewer
	unregister chan *Viewer
	newTweets  chan TweetRecordModel
	deletes    chan string
	stopChan   chan bool
}

func NewFanoutHub(store *TweetStore, pageSize int) *FanoutHub {
	return &FanoutHub{
		store:      store,
		pageSize:   pageSize,
		viewers:    make(map[*Viewer]bool),
		register:   make(chan *Viewer),
		unregister: make(chan *Viewer),
		newTweets:  make(chan TweetRecordModel, 64),
		deletes:    make(chan string, 64),
		stopChan:   make(chan bool),
	}
}

func (h *FanoutHub) Run() {
	clock := time.NewTicker(clockSyncInterval)
	defer clock.Stop()

	for {
		select {
		case viewer := <-h.register:
			h.viewers[viewer] = true
			log.Printf("Viewer %s connected, %d online", viewer.id, len(h.viewers))
			h.fanout(marshalEnvelope(EVENT_USERS, UsersPayload{Count: len(h.viewers)}))

		case viewer := <-h.unregister:
			if _, ok := h.viewers[viewer]; ok {
				h.drop(viewer)
				log.Printf("Viewer %s disconnected, %d online", viewer.id, len(h.viewers))
				h.fanout(marshalEnvelope(EVENT_USERS, UsersPayload{Count: len(h.viewers)}))
			}

		case record := <-h.newTweets:
			data := marshalEnvelope(EVENT_NEW_TWEETS, record)
			for viewer := range h.viewers {
				if viewer.enqueue(data) {
					viewer.advanceNewest(record.ReceivedAt)
				} else {
					h.drop(viewer)
				}
			}

		case tweetID := <-h.deletes:
			h.fanout(marshalEnvelope(EVENT_DELETE, DeletePayload{ID: tweetID}))

		case <-clock.C:
			h.fanout(marshalEnvelope(EVENT_TIME, TimePayload{Now: time.Now().UnixMilli()}))

		case <-h.stopChan:
			for viewer := range h.viewers {
				h.drop(viewer)
			}
			return
		}
	}
}

func (h *FanoutHub) Stop() {
	close(h.stopChan)
}

// fanout delivers one marshaled envelope to every viewer. A viewer whose
// bounded queue is full is dropped on the spot rather than allowed to stall
// the others.
func (h *FanoutHub) fanout(data []byte) {
	if data == nil {
		return
	}
	for viewer := range h.viewers {
		if !viewer.enqueue(data) {
			h.drop(viewer)
		}
	}
}

// drop must run on the Run loop.
func (h *FanoutHub) drop(viewer *Viewer) {
	delete(h.viewers, viewer)
	viewer.closeSend()
}

func (h *FanoutHub) Register(viewer *Viewer) {
	select {
	case h.register <- viewer:
	case <-h.stopChan:
	}
}

func (h *FanoutHub) Unregister(viewer *Viewer) {
	select {
	case h.unregister <- viewer:
	case <-h.stopChan:
	}
}

// BroadcastTweet pushes a freshly stored record to every connected viewer.
func (h *FanoutHub) BroadcastTweet(record TweetRecordModel) {
	select {
	case h.newTweets <- record:
	default:
		log.Printf("Fanout queue full, skipping broadcast of tweet %s", record.TweetID)
	}
}

// BroadcastDelete tells every viewer to retract a locally rendered tweet.
func (h *FanoutHub) BroadcastDelete(tweetID string) {
	select {
	case h.deletes <- tweetID:
	default:
		log.Printf("Fanout queue full, skipping delete broadcast of tweet %s", tweetID)
	}
}

func marshalEnvelope(event string, data interface{}) []byte {
	payload, err := json.Marshal(ServerEnvelope{Event: event, Data: data})
	if err != nil {
		log.Printf("Error marshaling %s envelope: %v", event, err)
		return nil
	}
	return payload
}
