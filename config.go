package main

const ENV_STREAM_USERNAME = "stream_username"
const ENV_STREAM_PASSWORD = "stream_password"
const ENV_STREAM_ENDPOINT = "stream_endpoint"
const ENV_PROXY_DSN = "proxy_dsn"
const ENV_FOLLOW_USER_IDS = "follow_user_ids"
const ENV_TRACK_KEYWORDS = "track_keywords"
const ENV_DATABASE_NAME = "database_name"
const ENV_LISTEN_ADDR = "listen_addr"
const ENV_RETENTION_HOURS = "retention_hours"
const ENV_PAGE_SIZE = "page_size"
const ENV_TELEGRAM_API_KEY = "telegram_api_key"
const ENV_TELEGRAM_ADMIN_CHAT_ID = "tg_admin_chat_id"

// Defaults applied when the env leaves a knob unset.
const DEFAULT_STREAM_ENDPOINT = "https://stream.twitter.com/1.1/statuses/filter.json"
const DEFAULT_LISTEN_ADDR = ":3000"
const DEFAULT_RETENTION_HOURS = 72
const DEFAULT_PAGE_SIZE = 20

// Viewer protocol event names.
const EVENT_USERS = "users"
const EVENT_NEW_TWEETS = "newtweets"
const EVENT_OLD_TWEETS = "oldtweets"
const EVENT_DELETE = "delete"
const EVENT_TIME = "time"
const EVENT_ERROR = "error"
const EVENT_GET_TWEETS = "gettweets"

// Catch-up directions carried by a gettweets request.
const CATCHUP_NEWER = "newer"
const CATCHUP_OLDER = "older"
