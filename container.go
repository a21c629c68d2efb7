package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/askedal/tweetwall/streamapi"
	"go.uber.org/dig"
)

type Config struct {
	StreamUsername      string
	StreamPassword      string
	StreamEndpoint      string
	ProxyDSN            string
	FollowUserIDs       []string
	TrackKeywords       []string
	DatabaseName        string
	ListenAddr          string
	RetentionWindow     time.Duration
	PageSize            int
	TelegramAPIKey      string
	TelegramAdminChatID string
}

// WriteOp is one store mutation from the ingestion pipeline. Exactly one of
// Record or DeleteID is set. Inserts and deletes ride a single channel so a
// delete notice can never overtake the insert of the tweet it retracts.
type WriteOp struct {
	Record   *TweetRecordModel
	DeleteID string
}

type Channels struct {
	StreamEventCh chan streamapi.StreamEvent
	WriteCh       chan WriteOp
}

func ProvideConfig() (*Config, error) {
	username := os.Getenv(ENV_STREAM_USERNAME)
	if username == "" {
		return nil, fmt.Errorf("stream username should be set .env: %s", ENV_STREAM_USERNAME)
	}

	password := os.Getenv(ENV_STREAM_PASSWORD)
	if password == "" {
		return nil, fmt.Errorf("stream password should be set .env: %s", ENV_STREAM_PASSWORD)
	}

	followRaw := os.Getenv(ENV_FOLLOW_USER_IDS)
	trackRaw := os.Getenv(ENV_TRACK_KEYWORDS)
	if followRaw == "" && trackRaw == "" {
		return nil, fmt.Errorf("at least one of %s or %s must be set", ENV_FOLLOW_USER_IDS, ENV_TRACK_KEYWORDS)
	}

	endpoint := os.Getenv(ENV_STREAM_ENDPOINT)
	if endpoint == "" {
		endpoint = DEFAULT_STREAM_ENDPOINT
	}

	dbName := os.Getenv(ENV_DATABASE_NAME)
	if dbName == "" {
		dbName = "tweetwall.db"
	}

	listenAddr := os.Getenv(ENV_LISTEN_ADDR)
	if listenAddr == "" {
		listenAddr = DEFAULT_LISTEN_ADDR
	}

	retentionHours := DEFAULT_RETENTION_HOURS
	if raw := os.Getenv(ENV_RETENTION_HOURS); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid %s: %q", ENV_RETENTION_HOURS, raw)
		}
		retentionHours = parsed
	}

	pageSize := DEFAULT_PAGE_SIZE
	if raw := os.Getenv(ENV_PAGE_SIZE); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid %s: %q", ENV_PAGE_SIZE, raw)
		}
		pageSize = parsed
	}

	return &Config{
		StreamUsername:      username,
		StreamPassword:      password,
		StreamEndpoint:      endpoint,
		ProxyDSN:            os.Getenv(ENV_PROXY_DSN),
		FollowUserIDs:       splitList(followRaw),
		TrackKeywords:       splitList(trackRaw),
		DatabaseName:        dbName,
		ListenAddr:          listenAddr,
		RetentionWindow:     time.Duration(retentionHours) * time.Hour,
		PageSize:            pageSize,
		TelegramAPIKey:      os.Getenv(ENV_TELEGRAM_API_KEY),
		TelegramAdminChatID: os.Getenv(ENV_TELEGRAM_ADMIN_CHAT_ID),
	}, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func ProvideChannels() *Channels {
	return &Channels{
		StreamEventCh: make(chan streamapi.StreamEvent, 100),
		WriteCh:       make(chan WriteOp, 60),
	}
}

func ProvideStreamClient(config *Config) *streamapi.StreamClient {
	return streamapi.NewStreamClient(config.StreamUsername, config.StreamPassword, config.StreamEndpoint,
		config.FollowUserIDs, config.TrackKeywords, config.ProxyDSN)
}

func ProvideTweetStore(config *Config) (*TweetStore, error) {
	return NewTweetStore(config.DatabaseName)
}

func ProvideFanoutHub(config *Config, store *TweetStore) *FanoutHub {
	return NewFanoutHub(store, config.PageSize)
}

func ProvideRetentionScheduler(config *Config, store *TweetStore) *RetentionScheduler {
	return NewRetentionScheduler(store, config.RetentionWindow)
}

func ProvideAlertService(config *Config) (*AlertService, error) {
	return NewAlertService(config.TelegramAPIKey, config.TelegramAdminChatID)
}

func ProvideServer(config *Config, hub *FanoutHub, store *TweetStore) *Server {
	return NewServer(hub, store, config.ListenAddr)
}

func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	if err := container.Provide(ProvideConfig); err != nil {
		return nil, fmt.Errorf("failed to provide config: %w", err)
	}

	if err := container.Provide(ProvideChannels); err != nil {
		return nil, fmt.Errorf("failed to provide channels: %w", err)
	}

	if err := container.Provide(ProvideStreamClient); err != nil {
		return nil, fmt.Errorf("failed to provide stream client: %w", err)
	}

	if err := container.Provide(ProvideTweetStore); err != nil {
		return nil, fmt.Errorf("failed to provide tweet store: %w", err)
	}

	if err := container.Provide(ProvideFanoutHub); err != nil {
		return nil, fmt.Errorf("failed to provide fanout hub: %w", err)
	}

	if err := container.Provide(ProvideRetentionScheduler); err != nil {
		return nil, fmt.Errorf("failed to provide retention scheduler: %w", err)
	}

	if err := container.Provide(ProvideAlertService); err != nil {
		return nil, fmt.Errorf("failed to provide alert service: %w", err)
	}

	if err := container.Provide(ProvideServer); err != nil {
		return nil, fmt.Errorf("failed to provide server: %w", err)
	}

	if err := container.Provide(NewApplication); err != nil {
		return nil, fmt.Errorf("failed to provide application: %w", err)
	}

	return container, nil
}
