// Package jobs defines the River Queue job types for async processing.
//
// Jobs carry only identifiers; workers load the rest from the database.
package jobs

import (
	"time"

	"github.com/riverqueue/river"
)

// Periodic returns the maintenance jobs scheduled by the River client.
func Periodic() []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return ProductionRunCleanupArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return NotificationCleanupArgs{}, nil
			},
			nil,
		),
	}
}
