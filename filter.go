package main

import (
	"github.com/askedal/tweetwall/streamapi"
)

type Verdict int

const (
	VerdictAccepted Verdict = iota
	VerdictAcceptedRetweet
	VerdictRejected
)

// Classification is the outcome of running one tweet through the filter
// rules. For an accepted retweet, Tweet is the retweeted original and
// RetweetOf the account that retweeted it.
type Classification struct {
	Verdict   Verdict
	Tweet     *streamapi.Tweet
	RetweetOf *streamapi.User
	Reason    string
}

// ClassifyTweet decides whether a tweet belongs on the wall. Rules run in
// order, first match wins:
//  1. no usable author object -> reject
//  2. plain reply -> reject (a reply that is also a retweet stays in)
//  3. retweet: keep only when the retweeter is followed and the original
//     author is not, so content already seen directly is not delivered twice
//  4. everything else is an original post
func ClassifyTweet(tweet *streamapi.Tweet, follows map[string]bool) Classification {
	if tweet.User == nil || tweet.User.ScreenName == "" {
		return Classification{Verdict: VerdictRejected, Reason: "missing user object"}
	}

	// Some replies carry only the user-id field, both mark a reply.
	if (tweet.InReplyToStatusIDStr != "" || tweet.InReplyToUserIDStr != "") && tweet.RetweetedStatus == nil {
		return Classification{Verdict: VerdictRejected, Reason: "reply"}
	}

	if tweet.RetweetedStatus != nil {
		if !follows[tweet.User.IDStr] {
			return Classification{Verdict: VerdictRejected, Reason: "retweet by unfollowed account"}
		}
		original := tweet.RetweetedStatus
		if original.User == nil || original.User.ScreenName == "" {
			return Classification{Verdict: VerdictRejected, Reason: "retweet missing original user"}
		}
		if follows[original.User.IDStr] {
			return Classification{Verdict: VerdictRejected, Reason: "retweet of followed account"}
		}
		// One level of unwrapping only, a retweet of a retweet is not
		// recursed into.
		return Classification{
			Verdict:   VerdictAcceptedRetweet,
			Tweet:     original,
			RetweetOf: tweet.User,
		}
	}

	return Classification{Verdict: VerdictAccepted, Tweet: tweet}
}
