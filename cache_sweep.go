package main

import (
	"database/sql"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// StartCacheSweeper starts a cron-based scheduler that periodically deletes
// expired rows from the TMDB response cache so the sqlite file does not grow
// without bound. The schedule is a standard 5-field cron expression
// (minute hour day-of-month month day-of-week), e.g. "0 * * * *" (hourly).
func StartCacheSweeper(cfg Config, db *sql.DB) {
	schedule := strings.TrimSpace(cfg.CacheSweepSchedule)
	if schedule == "" {
		log.Println("Cache sweep disabled (cache_sweep_schedule not set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid cache_sweep_schedule '%s': %v (cache sweep disabled)", schedule, err)
		return
	}

	ttl := time.Duration(cfg.TMDBCacheTTLMinutes) * time.Minute
	log.Printf("Cache sweep scheduled (cron: %s) ttl=%s", schedule, ttl)

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			time.Sleep(next.Sub(now))

			purged, err := PurgeExpiredCache(db, ttl)
			if err != nil {
				log.Printf("cache sweep error: %v", err)
				continue
			}
			log.Printf("cache sweep purged=%d", purged)
		}
	}()
}
