package streamapi

type Tweet struct {
	IDStr                string   `json:"id_str"`
	Text                 string   `json:"text"`
	CreatedAt            string   `json:"created_at"`
	User                 *User    `json:"user"`
	Entities             Entities `json:"entities"`
	InReplyToStatusIDStr string   `json:"in_reply_to_status_id_str"`
	InReplyToUserIDStr   string   `json:"in_reply_to_user_id_str"`
	RetweetedStatus      *Tweet   `json:"retweeted_status,omitempty"`
}

type User struct {
	IDStr           string `json:"id_str"`
	Name            string `json:"name"`
	ScreenName      string `json:"screen_name"`
	ProfileImageURL string `json:"profile_image_url_https"`
}

type Entities struct {
	URLs         []URLEntity     `json:"urls"`
	Media        []MediaEntity   `json:"media"`
	UserMentions []MentionEntity `json:"user_mentions"`
	Hashtags     []HashtagEntity `json:"hashtags"`
}

type URLEntity struct {
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url"`
	DisplayURL  string `json:"display_url"`
}

type MediaEntity struct {
	URL        string `json:"url"`
	MediaURL   string `json:"media_url_https"`
	DisplayURL string `json:"display_url"`
}

type MentionEntity struct {
	ScreenName string `json:"screen_name"`
	Name       string `json:"name"`
}

type HashtagEntity struct {
	Text string `json:"text"`
}

// DeleteNotice is the upstream status-deletion side channel record.
type DeleteNotice struct {
	Delete struct {
		Status struct {
			IDStr     string `json:"id_str"`
			UserIDStr string `json:"user_id_str"`
		} `json:"status"`
	} `json:"delete"`
}

// LimitNotice reports how many matching statuses the upstream dropped
// because the filter exceeded the rate limit.
type LimitNotice struct {
	Limit struct {
		Track int64 `json:"track"`
	} `json:"limit"`
}

type ScrubGeoNotice struct {
	ScrubGeo struct {
		UserIDStr       string `json:"user_id_str"`
		UpToStatusIDStr string `json:"up_to_status_id_str"`
	} `json:"scrub_geo"`
}

type EventKind int

const (
	EventTweet EventKind = iota
	EventDelete
	EventLimit
	EventScrubGeo
	EventError
)

// StreamEvent is one decoded frame from the upstream stream. Exactly one of
// the pointer fields is set for its kind; Err carries decode failures together
// with the offending payload.
type StreamEvent struct {
	Kind     EventKind
	Tweet    *Tweet
	Delete   *DeleteNotice
	Limit    *LimitNotice
	ScrubGeo *ScrubGeoNotice
	Err      error
	Payload  []byte
}
