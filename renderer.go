package main

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/askedal/tweetwall/streamapi"
)

const anchorMarker = "<a href="

// RenderTweet turns the raw tweet body into display text with every entity
// replaced by a hyperlinked form. Idempotent: text that already carries an
// anchor passes through untouched so a tweet flowing through the pipeline
// twice is not linkified twice.
func RenderTweet(tweet *streamapi.Tweet) string {
	text := tweet.Text
	if strings.Contains(text, anchorMarker) {
		return text
	}

	var subs []entitySub
	for _, entity := range tweet.Entities.URLs {
		target := entity.ExpandedURL
		if target == "" {
			target = entity.URL
		}
		display := entity.DisplayURL
		if display == "" {
			display = target
		}
		subs = append(subs, entitySub{entity.URL, makeAnchor(target, display)})
	}
	text = applySubstitutions(text, subs)

	subs = subs[:0]
	for _, entity := range tweet.Entities.Media {
		target := entity.MediaURL
		if target == "" {
			target = entity.URL
		}
		display := entity.DisplayURL
		if display == "" {
			display = target
		}
		subs = append(subs, entitySub{entity.URL, makeAnchor(target, display)})
	}
	text = applySubstitutions(text, subs)

	subs = subs[:0]
	for _, entity := range tweet.Entities.UserMentions {
		token := "@" + entity.ScreenName
		subs = append(subs, entitySub{token, makeAnchor("https://twitter.com/"+entity.ScreenName, token)})
	}
	text = applySubstitutions(text, subs)

	subs = subs[:0]
	for _, entity := range tweet.Entities.Hashtags {
		token := "#" + entity.Text
		target := "https://twitter.com/search?q=" + url.QueryEscape(token)
		subs = append(subs, entitySub{token, makeAnchor(target, token)})
	}
	return applySubstitutions(text, subs)
}

type entitySub struct {
	token       string
	replacement string
}

// applySubstitutions runs one category of entities through substituteEntity,
// longest token first so a tag like #go cannot split #golang mid-word.
func applySubstitutions(text string, subs []entitySub) string {
	sort.SliceStable(subs, func(i, j int) bool {
		return len(subs[i].token) > len(subs[j].token)
	})
	for _, sub := range subs {
		text = substituteEntity(text, sub.token, sub.replacement)
	}
	return text
}

func makeAnchor(target, display string) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, target, display)
}

// substituteEntity replaces every occurrence of token that lies outside an
// already-rendered anchor, so later entities never re-match substituted
// output. An empty token is a malformed entity and is skipped, the text
// stays as-is.
func substituteEntity(text, token, replacement string) string {
	if token == "" || strings.ContainsRune("@#", rune(token[0])) && len(token) == 1 {
		return text
	}

	var b strings.Builder
	i := 0
	for i < len(text) {
		next := strings.Index(text[i:], anchorMarker)
		segmentEnd := len(text)
		if next >= 0 {
			segmentEnd = i + next
		}
		b.WriteString(strings.ReplaceAll(text[i:segmentEnd], token, replacement))
		if next < 0 {
			break
		}

		anchorEnd := len(text)
		if closing := strings.Index(text[segmentEnd:], "</a>"); closing >= 0 {
			anchorEnd = segmentEnd + closing + len("</a>")
		}
		b.WriteString(text[segmentEnd:anchorEnd])
		i = anchorEnd
	}
	return b.String()
}
