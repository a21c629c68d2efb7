package main

import (
	"time"
)

// TweetRecordModel is one stored wall entry. ReceivedAt is the pagination
// key: unix milliseconds assigned by this process at insert time, strictly
// increasing, so range queries have a total order even when the source
// timestamps collide or arrive out of order.
type TweetRecordModel struct {
	AutoID          uint   `gorm:"primaryKey;autoIncrement;column:auto_id" json:"-"`
	TweetID         string `gorm:"column:tweet_id;uniqueIndex" json:"id"`
	ReceivedAt      int64  `gorm:"column:received_at;index" json:"time"`
	AuthorID        string `gorm:"column:author_id" json:"author_id"`
	AuthorName      string `gorm:"column:author_name" json:"name"`
	AuthorHandle    string `gorm:"column:author_handle" json:"screen_name"`
	AvatarURL       string `gorm:"column:avatar_url" json:"avatar,omitempty"`
	Text            string `gorm:"column:text" json:"text"`
	RawText         string `gorm:"column:raw_text" json:"-"`
	SourceCreatedAt string `gorm:"column:source_created_at" json:"created_at"`
	RetweetOfName   string `gorm:"column:retweet_of_name" json:"retweet_of,omitempty"`
	RetweetOfHandle string `gorm:"column:retweet_of_handle" json:"retweet_of_handle,omitempty"`

	UpdatedAt time.Time `gorm:"column:updated_at" json:"-"`
}

func (TweetRecordModel) TableName() string {
	return "tweets"
}
