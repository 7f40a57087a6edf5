package backup

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Marczelloo/atlas-hub/internal/store"
)

// mkBackups builds completed project backups at the given ages, newest
// first, as the store returns them.
func mkBackups(now time.Time, ages ...time.Duration) []store.Backup {
	out := make([]store.Backup, 0, len(ages))
	for _, age := range ages {
		out = append(out, store.Backup{
			ID:         uuid.New(),
			BackupType: store.BackupTypeProject,
			Status:     store.BackupStatusCompleted,
			CreatedAt:  now.Add(-age),
		})
	}
	return out
}

func TestClassifyRetentionTiers(t *testing.T) {
	now := time.Now()
	day := 24 * time.Hour

	// Ages: 1h, 2d, 4d, 5d, 9d, 20d — the literal spec scenario.
	backups := mkBackups(now, time.Hour, 2*day, 4*day, 5*day, 9*day, 20*day)

	keep, remove := ClassifyRetention(backups, now)

	wantKeep := []time.Duration{time.Hour, 2 * day, 4 * day, 9 * day}
	if len(keep) != len(wantKeep) {
		t.Fatalf("kept %d backups, want %d", len(keep), len(wantKeep))
	}
	for i, age := range wantKeep {
		wantAt := now.Add(-age)
		if !keep[i].CreatedAt.Equal(wantAt) {
			t.Errorf("keep[%d].CreatedAt = %v, want %v", i, keep[i].CreatedAt, wantAt)
		}
	}

	// The 5d (second in its band) and 20d backups go.
	if len(remove) != 2 {
		t.Fatalf("removed %d backups, want 2: %+v", len(remove), remove)
	}
	if !remove[0].CreatedAt.Equal(now.Add(-5 * day)) {
		t.Errorf("remove[0] = %v, want the 5d backup", remove[0].CreatedAt)
	}
	if !remove[1].CreatedAt.Equal(now.Add(-20 * day)) {
		t.Errorf("remove[1] = %v, want the 20d backup", remove[1].CreatedAt)
	}
}

func TestClassifyRetentionProperties(t *testing.T) {
	now := time.Now()
	day := 24 * time.Hour

	ages := []time.Duration{
		30 * time.Minute, time.Hour, 40 * time.Hour, 2 * day,
		3*day + time.Hour, 4 * day, 5 * day, 6 * day,
		8 * day, 10 * day, 13 * day,
		14 * day, 15 * day, 60 * day,
	}
	backups := mkBackups(now, ages...)

	keep, remove := ClassifyRetention(backups, now)

	if len(keep)+len(remove) != len(backups) {
		t.Fatalf("partition lost entries: %d + %d != %d", len(keep), len(remove), len(backups))
	}

	countBand := func(items []store.Backup, lo, hi time.Duration) int {
		n := 0
		for _, b := range items {
			age := now.Sub(b.CreatedAt)
			if age >= lo && age < hi {
				n++
			}
		}
		return n
	}

	// Everything under 3 days survives.
	if got, want := countBand(keep, 0, tierRecent), countBand(backups, 0, tierRecent); got != want {
		t.Errorf("recent tier kept %d of %d", got, want)
	}
	// At most one survivor per middle band.
	if got := countBand(keep, tierRecent, tierWeek); got > 1 {
		t.Errorf("3-7d tier kept %d, want at most 1", got)
	}
	if got := countBand(keep, tierWeek, tierMonth); got > 1 {
		t.Errorf("7-14d tier kept %d, want at most 1", got)
	}
	// Nothing at or beyond 14 days survives.
	for _, b := range keep {
		if now.Sub(b.CreatedAt) >= tierMonth {
			t.Errorf("kept a backup aged %v", now.Sub(b.CreatedAt))
		}
	}
}

func TestClassifyRetentionEmpty(t *testing.T) {
	keep, remove := ClassifyRetention(nil, time.Now())
	if len(keep) != 0 || len(remove) != 0 {
		t.Errorf("empty input produced keep=%v remove=%v", keep, remove)
	}
}
