package main

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TweetStore is the time-ordered tweet history. Inserts and deletes arrive
// from the single pipeline writer (plus the admin path), range queries from
// many concurrent viewers; the mutex serializes writers and keeps the
// received_at clock strictly monotonic.
type TweetStore struct {
	db           *gorm.DB
	writeMutex   sync.Mutex
	lastReceived int64
}

// NewTweetStore creates a new tweet store instance
func NewTweetStore(dbPath string) (*TweetStore, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Silent to reduce log noise
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &TweetStore{db: db}

	if err := store.runMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Continue the received_at clock across restarts so old records can
	// never sort after new ones.
	var last int64
	row := db.Model(&TweetRecordModel{}).Select("COALESCE(MAX(received_at), 0)").Row()
	if err := row.Scan(&last); err == nil {
		store.lastReceived = last
	}

	return store, nil
}

func (s *TweetStore) runMigrations() error {
	return s.db.AutoMigrate(&TweetRecordModel{})
}

// nextReceivedAt must be called with writeMutex held.
func (s *TweetStore) nextReceivedAt() int64 {
	now := time.Now().UnixMilli()
	if now <= s.lastReceived {
		now = s.lastReceived + 1
	}
	s.lastReceived = now
	return now
}

// Insert appends a record, assigning its received_at. Re-delivery of an
// already stored tweet id is a no-op, never an update; the returned bool
// reports whether the record was actually inserted.
func (s *TweetStore) Insert(record TweetRecordModel) (TweetRecordModel, bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	var count int64
	if err := s.db.Model(&TweetRecordModel{}).Where("tweet_id = ?", record.TweetID).Count(&count).Error; err != nil {
		return record, false, fmt.Errorf("failed to check tweet %s: %w", record.TweetID, err)
	}
	if count > 0 {
		return record, false, nil
	}

	record.ReceivedAt = s.nextReceivedAt()
	record.UpdatedAt = time.Now()
	if err := s.db.Create(&record).Error; err != nil {
		return record, false, fmt.Errorf("failed to insert tweet %s: %w", record.TweetID, err)
	}
	return record, true, nil
}

// Delete removes a tweet by its id and reports whether it existed. Deleting
// an absent id is not an error.
func (s *TweetStore) Delete(tweetID string) (bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	result := s.db.Where("tweet_id = ?", tweetID).Delete(&TweetRecordModel{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete tweet %s: %w", tweetID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// RangeNewer returns up to limit records strictly after the given
// received_at, oldest first. The zero cursor means first contact and
// returns the newest limit records instead.
func (s *TweetStore) RangeNewer(after int64, limit int) ([]TweetRecordModel, error) {
	var records []TweetRecordModel

	if after == 0 {
		err := s.db.Order("received_at DESC").Limit(limit).Find(&records).Error
		if err != nil {
			return nil, fmt.Errorf("failed to query newest tweets: %w", err)
		}
		// Newest page is fetched descending, flip it to oldest-first.
		for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
		return records, nil
	}

	err := s.db.Where("received_at > ?", after).Order("received_at ASC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query newer tweets: %w", err)
	}
	return records, nil
}

// RangeOlder returns up to limit records strictly before the given
// received_at, newest first.
func (s *TweetStore) RangeOlder(before int64, limit int) ([]TweetRecordModel, error) {
	var records []TweetRecordModel
	err := s.db.Where("received_at < ?", before).Order("received_at DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query older tweets: %w", err)
	}
	return records, nil
}

// DeleteOlderThan evicts every record received before cutoff and returns how
// many rows went away. Row and unique tweet_id index go together in one
// statement, a reader mid-query keeps its own snapshot.
func (s *TweetStore) DeleteOlderThan(cutoff int64) (int64, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	result := s.db.Where("received_at < ?", cutoff).Delete(&TweetRecordModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to evict old tweets: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// TweetCount returns the total number of stored records.
func (s *TweetStore) TweetCount() (int64, error) {
	var count int64
	err := s.db.Model(&TweetRecordModel{}).Count(&count).Error
	return count, err
}

// Vacuum reclaims file space after an eviction sweep.
func (s *TweetStore) Vacuum() error {
	return s.db.Exec("VACUUM").Error
}

func (s *TweetStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
