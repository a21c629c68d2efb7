package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/askedal/tweetwall/streamapi"
)

const (
	reconnectBaseBackoff = 1 * time.Second
	reconnectMaxBackoff  = 240 * time.Second
	maxAuthFailures      = 3
)

type Application struct {
	config             *Config
	channels           *Channels
	streamClient       *streamapi.StreamClient
	store              *TweetStore
	hub                *FanoutHub
	retentionScheduler *RetentionScheduler
	alertService       *AlertService
	server             *Server
	follows            map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewApplication(
	config *Config,
	channels *Channels,
	streamClient *streamapi.StreamClient,
	store *TweetStore,
	hub *FanoutHub,
	retentionScheduler *RetentionScheduler,
	alertService *AlertService,
	server *Server,
) (*Application, error) {
	follows := make(map[string]bool)
	for _, id := range config.FollowUserIDs {
		follows[id] = true
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Application{
		config:             config,
		channels:           channels,
		streamClient:       streamClient,
		store:              store,
		hub:                hub,
		retentionScheduler: retentionScheduler,
		alertService:       alertService,
		server:             server,
		follows:            follows,
		ctx:                ctx,
		cancel:             cancel,
	}, nil
}

func (app *Application) Initialize() error {
	count, err := app.store.TweetCount()
	if err != nil {
		return fmt.Errorf("store not usable: %w", err)
	}
	log.Printf("Tweet store initialized successfully, %d records", count)

	app.retentionScheduler.Start()
	go app.hub.Run()
	app.server.Start()

	return nil
}

func (app *Application) Run() error {
	wg := sync.WaitGroup{}

	var fatalErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(app.channels.StreamEventCh)
		if err := app.superviseStream(); err != nil {
			fatalErr = err
			app.cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(app.channels.WriteCh)
		for event := range app.channels.StreamEventCh {
			app.dispatchEvent(event)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.storeAndFanout()
	}()

	wg.Wait()
	return fatalErr
}

// superviseStream keeps exactly one upstream connection alive, reconnecting
// with capped exponential backoff. Repeated auth failures are fatal, bad
// credentials do not get better by retrying.
func (app *Application) superviseStream() error {
	backoff := reconnectBaseBackoff
	authFailures := 0

	for {
		if app.ctx.Err() != nil {
			return nil
		}

		log.Printf("Connecting to upstream stream %s", app.config.StreamEndpoint)
		sawFrame, err := app.runStreamOnce()
		if app.ctx.Err() != nil {
			return nil
		}

		if errors.Is(err, streamapi.ErrAuthFailed) {
			authFailures++
			log.Printf("Stream auth failure %d/%d: %v", authFailures, maxAuthFailures, err)
			if authFailures >= maxAuthFailures {
				app.alertService.Notify(fmt.Sprintf("🚨 Tweetwall aborting: stream authentication failed %d times", authFailures))
				return fmt.Errorf("giving up after %d auth failures: %w", authFailures, err)
			}
		} else {
			authFailures = 0
			log.Printf("Stream disconnected: %v", err)
		}

		// One parseable frame proves the connection worked, the next
		// failure starts the ladder over from the bottom.
		if sawFrame {
			backoff = reconnectBaseBackoff
		}

		log.Printf("Reconnecting in %s", backoff)
		select {
		case <-time.After(backoff):
		case <-app.ctx.Done():
			return nil
		}

		backoff *= 2
		if backoff > reconnectMaxBackoff {
			backoff = reconnectMaxBackoff
			app.alertService.Notify("⚠️ Tweetwall stream has been down for a while, reconnect backoff at maximum")
		}
	}
}

// runStreamOnce drives a single upstream connection, forwarding its events
// into the dispatch stage. It reports whether the connection delivered at
// least one parseable frame before dying.
func (app *Application) runStreamOnce() (bool, error) {
	events := make(chan streamapi.StreamEvent, 100)
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.streamClient.Stream(app.ctx, events)
		close(events)
	}()

	sawFrame := false
	for event := range events {
		if event.Kind != streamapi.EventError {
			sawFrame = true
		}
		app.channels.StreamEventCh <- event
	}
	return sawFrame, <-errCh
}

// dispatchEvent classifies one stream event and forwards the survivors to
// the writer stage.
func (app *Application) dispatchEvent(event streamapi.StreamEvent) {
	switch event.Kind {
	case streamapi.EventTweet:
		classification := ClassifyTweet(event.Tweet, app.follows)
		if classification.Verdict == VerdictRejected {
			log.Printf("Rejected tweet %s: %s", event.Tweet.IDStr, classification.Reason)
			return
		}

		record := recordFromClassification(classification)
		select {
		case app.channels.WriteCh <- WriteOp{Record: &record}:
		default:
			log.Printf("Write channel full, skipping tweet %s", record.TweetID)
		}

	case streamapi.EventDelete:
		select {
		case app.channels.WriteCh <- WriteOp{DeleteID: event.Delete.Delete.Status.IDStr}:
		default:
			log.Printf("Write channel full, skipping delete %s", event.Delete.Delete.Status.IDStr)
		}

	case streamapi.EventLimit:
		log.Printf("Upstream rate limit notice, %d statuses dropped", event.Limit.Limit.Track)

	case streamapi.EventScrubGeo:
		log.Printf("Upstream geo scrub notice for user %s up to %s",
			event.ScrubGeo.ScrubGeo.UserIDStr, event.ScrubGeo.ScrubGeo.UpToStatusIDStr)

	case streamapi.EventError:
		log.Printf("Unparseable stream frame: %v, payload: %s", event.Err, event.Payload)
	}
}

// storeAndFanout is the single writer of the store. It applies mutations in
// the order the stream delivered them, so a delete notice arriving right
// behind its tweet retracts it instead of no-opping ahead of the insert.
func (app *Application) storeAndFanout() {
	for op := range app.channels.WriteCh {
		if op.Record != nil {
			stored, inserted, err := app.store.Insert(*op.Record)
			if err != nil {
				log.Printf("Error storing tweet %s: %v", op.Record.TweetID, err)
				continue
			}
			if !inserted {
				log.Printf("Duplicate tweet %s, not broadcast", op.Record.TweetID)
				continue
			}
			app.hub.BroadcastTweet(stored)
			continue
		}

		existed, err := app.store.Delete(op.DeleteID)
		if err != nil {
			log.Printf("Error deleting tweet %s: %v", op.DeleteID, err)
			continue
		}
		if existed {
			app.hub.BroadcastDelete(op.DeleteID)
		}
	}
}

func recordFromClassification(classification Classification) TweetRecordModel {
	tweet := classification.Tweet

	record := TweetRecordModel{
		TweetID:         tweet.IDStr,
		AuthorID:        tweet.User.IDStr,
		AuthorName:      tweet.User.Name,
		AuthorHandle:    tweet.User.ScreenName,
		AvatarURL:       tweet.User.ProfileImageURL,
		Text:            RenderTweet(tweet),
		RawText:         tweet.Text,
		SourceCreatedAt: tweet.CreatedAt,
	}

	if classification.Verdict == VerdictAcceptedRetweet && classification.RetweetOf != nil {
		record.RetweetOfName = classification.RetweetOf.Name
		record.RetweetOfHandle = classification.RetweetOf.ScreenName
	}

	return record
}

func (app *Application) Shutdown() {
	log.Println("Shutting down application...")

	app.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}

	app.hub.Stop()
	app.retentionScheduler.Stop()
	app.store.Close()

	log.Println("Application shutdown completed")
}
