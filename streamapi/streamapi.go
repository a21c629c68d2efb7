package streamapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/buger/jsonparser"
)

// ErrAuthFailed is returned when the upstream rejects the credentials.
// Unlike network errors it is not transient, the supervisor aborts after
// seeing it repeatedly.
var ErrAuthFailed = errors.New("stream authentication failed")

const (
	frameDelimiter = "\r\n"
	// stallTimeout aborts a connection that stops delivering bytes. The
	// upstream sends blank keep-alive frames well inside this window.
	stallTimeout = 90 * time.Second
)

type StreamClient struct {
	username   string
	password   string
	endpoint   string
	follow     []string
	track      []string
	httpClient *http.Client
}

func NewStreamClient(username, password, endpoint string, follow, track []string, proxyDSN string) *StreamClient {
	transport := &http.Transport{}
	if proxyDSN != "" {
		proxyURL, err := url.Parse(proxyDSN)
		if err != nil {
			panic(err)
		}

		transport = &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: false,
			},
		}
	}

	return &StreamClient{
		username: username,
		password: password,
		endpoint: endpoint,
		follow:   follow,
		track:    track,
		// No overall timeout here, the response body is a never-ending
		// stream. Stalls are handled with a read-reset timer instead.
		httpClient: &http.Client{Transport: transport},
	}
}

// Stream opens one connection and emits decoded frames on events until the
// connection dies or ctx is cancelled. It always returns a non-nil error
// describing why the connection ended; reconnecting is the caller's job.
func (c *StreamClient) Stream(ctx context.Context, events chan<- StreamEvent) error {
	form := url.Values{}
	if len(c.follow) > 0 {
		form.Set("follow", strings.Join(c.follow, ","))
	}
	if len(c.track) > 0 {
		form.Set("track", strings.Join(c.track, ","))
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(connCtx, "POST", c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("error create stream request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Connection", "keep-alive")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error connect stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("error connect stream, status non 200: %d", resp.StatusCode)
	}

	// Cancel the request when no bytes arrive for stallTimeout.
	stall := time.AfterFunc(stallTimeout, cancel)
	defer stall.Stop()

	var data []byte
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			stall.Reset(stallTimeout)
			data = append(data, buf[:n]...)

			var frames [][]byte
			frames, data = splitFrames(data)
			for _, frame := range frames {
				select {
				case events <- parseFrame(frame):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("stream connection closed: %w", err)
		}
	}
}

// splitFrames cuts every complete delimiter-terminated frame out of data and
// returns the trailing partial frame for the next read. Blank keep-alive
// frames are dropped here.
func splitFrames(data []byte) ([][]byte, []byte) {
	var frames [][]byte
	for {
		index := bytes.Index(data, []byte(frameDelimiter))
		if index < 0 {
			return frames, data
		}
		frame := data[:index]
		data = data[index+len(frameDelimiter):]
		if len(bytes.TrimSpace(frame)) == 0 {
			continue
		}
		frames = append(frames, frame)
	}
}

// parseFrame classifies one frame by its discriminator key and decodes it.
// A broken frame becomes an EventError, never a dead connection.
func parseFrame(frame []byte) StreamEvent {
	payload := make([]byte, len(frame))
	copy(payload, frame)

	if _, _, _, err := jsonparser.Get(payload, "delete"); err == nil {
		notice := DeleteNotice{}
		if err := json.Unmarshal(payload, &notice); err != nil {
			return StreamEvent{Kind: EventError, Err: fmt.Errorf("error parse delete notice: %w", err), Payload: payload}
		}
		return StreamEvent{Kind: EventDelete, Delete: &notice, Payload: payload}
	}

	if _, _, _, err := jsonparser.Get(payload, "limit"); err == nil {
		notice := LimitNotice{}
		if err := json.Unmarshal(payload, &notice); err != nil {
			return StreamEvent{Kind: EventError, Err: fmt.Errorf("error parse limit notice: %w", err), Payload: payload}
		}
		return StreamEvent{Kind: EventLimit, Limit: &notice, Payload: payload}
	}

	if _, _, _, err := jsonparser.Get(payload, "scrub_geo"); err == nil {
		notice := ScrubGeoNotice{}
		if err := json.Unmarshal(payload, &notice); err != nil {
			return StreamEvent{Kind: EventError, Err: fmt.Errorf("error parse scrub_geo notice: %w", err), Payload: payload}
		}
		return StreamEvent{Kind: EventScrubGeo, ScrubGeo: &notice, Payload: payload}
	}

	tweet := Tweet{}
	if err := json.Unmarshal(payload, &tweet); err != nil {
		return StreamEvent{Kind: EventError, Err: fmt.Errorf("error parse tweet: %w", err), Payload: payload}
	}
	return StreamEvent{Kind: EventTweet, Tweet: &tweet, Payload: payload}
}
