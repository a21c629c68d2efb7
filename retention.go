package main

import (
	"log"
	"time"
)

// RetentionScheduler periodically evicts records older than the retention
// window so the wall's history stays bounded.
type RetentionScheduler struct {
	store    *TweetStore
	window   time.Duration
	interval time.Duration
	ticker   *time.Ticker
	stopChan chan bool
}

func NewRetentionScheduler(store *TweetStore, window time.Duration) *RetentionScheduler {
	interval := window / 10
	if interval < time.Minute {
		interval = time.Minute
	}
	return &RetentionScheduler{
		store:    store,
		window:   window,
		interval: interval,
		stopChan: make(chan bool),
	}
}

func (rs *RetentionScheduler) Start() {
	log.Printf("🧹 Starting retention scheduler - window %s, sweep every %s", rs.window, rs.interval)

	rs.ticker = time.NewTicker(rs.interval)

	go func() {
		defer rs.ticker.Stop()

		for {
			select {
			case <-rs.ticker.C:
				rs.runSweep()
			case <-rs.stopChan:
				log.Printf("🧹 Retention scheduler stopped")
				return
			}
		}
	}()
}

func (rs *RetentionScheduler) Stop() {
	log.Printf("🧹 Stopping retention scheduler")
	close(rs.stopChan)
}

func (rs *RetentionScheduler) runSweep() {
	cutoff := time.Now().Add(-rs.window).UnixMilli()

	removed, err := rs.store.DeleteOlderThan(cutoff)
	if err != nil {
		log.Printf("❌ Error during retention sweep: %v", err)
		return
	}
	if removed == 0 {
		return
	}

	if err := rs.store.Vacuum(); err != nil {
		log.Printf("❌ Error during VACUUM: %v", err)
		return
	}

	count, err := rs.store.TweetCount()
	if err != nil {
		log.Printf("❌ Error getting tweet count: %v", err)
		return
	}

	log.Printf("✅ Retention sweep evicted %d records, %d remain", removed, count)
}

// RunSweepNow triggers a sweep outside the schedule.
func (rs *RetentionScheduler) RunSweepNow() {
	log.Printf("🧹 Running manual retention sweep")
	rs.runSweep()
}
