package reconcile

import (
	"time"

	"github.com/stagecheck/stagecheck/pkg/snapshot"
)

// SeedCurrent backfills deploy provenance for records whose remote contents
// were found to already equal the working copy. Without the backfill, a
// later local edit would classify the remote as an unexplained change even
// though this run proved it was a copy of our own content. Records that
// already carry provenance are left alone. Returns how many records
// changed; the snapshot is marked dirty only when that's non-zero.
func SeedCurrent(snap *snapshot.Snapshot, current []Result, now time.Time) int {
	seeded := 0
	for _, result := range current {
		record := result.Record
		if record.LastDeploy != nil || record.LocalHash.Unknown() {
			continue
		}
		record.LastDeploy = &snapshot.DeployStamp{
			Hash: record.LocalHash,
			Time: now,
		}
		seeded++
	}
	if seeded > 0 {
		snap.MarkDirty()
	}
	return seeded
}

// ApplyOutcomes records successful deploys in the snapshot. Failed items
// and backup-only items change nothing. Returns how many records changed.
func ApplyOutcomes(snap *snapshot.Snapshot, outcomes []Outcome) int {
	applied := 0
	for _, outcome := range outcomes {
		if outcome.Failed() || outcome.Deployed == nil {
			continue
		}
		outcome.Item.Result.Record.LastDeploy = outcome.Deployed
		applied++
	}
	if applied > 0 {
		snap.MarkDirty()
	}
	return applied
}
