package backup

import (
	"time"

	"github.com/Marczelloo/atlas-hub/internal/store"
)

// Retention tier boundaries.
const (
	tierRecent = 3 * 24 * time.Hour
	tierWeek   = 7 * 24 * time.Hour
	tierMonth  = 14 * 24 * time.Hour
)

// ClassifyRetention partitions a project's completed project-type backups
// into kept and deleted sets by age band:
//
//	age < 3d          keep all
//	3d ≤ age < 7d     keep newest of the band, delete the rest
//	7d ≤ age < 14d    keep newest of the band, delete the rest
//	age ≥ 14d         delete all
//
// backups must be ordered newest first, as ListCompletedProjectBackups
// returns them.
func ClassifyRetention(backups []store.Backup, now time.Time) (keep, remove []store.Backup) {
	keptWeek := false
	keptMonth := false

	for _, b := range backups {
		age := now.Sub(b.CreatedAt)
		switch {
		case age < tierRecent:
			keep = append(keep, b)
		case age < tierWeek:
			if keptWeek {
				remove = append(remove, b)
			} else {
				keep = append(keep, b)
				keptWeek = true
			}
		case age < tierMonth:
			if keptMonth {
				remove = append(remove, b)
			} else {
				keep = append(keep, b)
				keptMonth = true
			}
		default:
			remove = append(remove, b)
		}
	}
	return keep, remove
}
