package capture

import (
	"context"
	"log"
	"time"

	"github.com/ranhaber/car-x/pool"
)

// consecutive capture failures before the loop complains out loud.
const errorLogThreshold = 30

// Loop publishes frames from src into the pool at targetFPS until ctx is
// cancelled. The grab buffer is allocated once before the loop; a capture
// error drops that tick and the loop keeps its cadence.
func Loop(ctx context.Context, src Source, shared *pool.Pool, targetFPS float64) {
	if targetFPS <= 0 {
		targetFPS = 30
	}
	grab := shared.NewFrameMat()
	defer grab.Close()

	period := time.Duration(float64(time.Second) / targetFPS)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	errStreak := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := src.Read(&grab); err != nil {
				errStreak++
				if errStreak == errorLogThreshold {
					log.Printf("[capture] %d consecutive capture failures, last: %v", errStreak, err)
				}
				continue
			}
			if errStreak >= errorLogThreshold {
				log.Printf("[capture] camera recovered after %d failed grabs", errStreak)
			}
			errStreak = 0
			shared.PublishFrame(&grab)
		}
	}
}
