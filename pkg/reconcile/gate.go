package reconcile

import (
	"github.com/stagecheck/stagecheck/pkg/errors"
)

// Decision is the operator's answer for a path whose remote contents no
// authority explains.
type Decision int

const (
	// Abort discards the whole plan. It's the zero value so that any
	// unrecognized answer falls back to the safe choice.
	Abort Decision = iota

	// Replace forces the path into the plan, with a mandatory backup
	// before the overwrite.
	Replace

	// Keep leaves the remote contents alone, but still downloads a
	// timestamped backup of them for manual inspection.
	Keep
)

// Decider resolves conflicting paths. Implementations are expected to
// involve a human; the reconciliation core never resolves a conflict on
// its own.
type Decider interface {
	Resolve(result Result) (Decision, error)
}

// ErrAborted is returned when the operator discards the plan, either at a
// conflict or by answering an unrecognized response. Nothing is deployed
// and no record changes.
var ErrAborted = errors.New("deploy aborted")

// ItemKind says what the executor should do with a plan item.
type ItemKind int

const (
	// Upload transfers the working copy file to the target, backing up
	// the existing remote object first unless the path is missing there.
	Upload ItemKind = iota

	// BackupOnly downloads the remote object and uploads nothing. It's
	// produced when the operator keeps an unexplained remote change.
	BackupOnly
)

// Item is one planned action.
type Item struct {
	Result Result
	Kind   ItemKind
}

// NeedsBackup returns whether the remote object must be saved before (or
// instead of) the upload.
func (item Item) NeedsBackup() bool {
	return item.Kind == BackupOnly || item.Result.Status != StatusMissing
}

// Plan is the full, approved set of actions for one run. Plans are
// all-or-nothing: BuildPlan either judges every path safe (or operator
// approved) or returns ErrAborted with no plan at all.
type Plan struct {
	Items []Item

	// Current are the paths whose remote contents already equal the
	// working copy. They transfer nothing, but their records are eligible
	// for deploy provenance backfill.
	Current []Result
}

// Empty returns whether the plan transfers nothing.
func (p *Plan) Empty() bool {
	return len(p.Items) == 0
}

// BuildPlan applies the safety policy to classified results. Paths
// explained by a trusted authority are planned automatically; unexplained
// paths are put to the decider one at a time. An Abort decision throws
// away the entire plan, including items already judged safe, because one
// unexplained divergence makes the whole batch untrustworthy.
func BuildPlan(results []Result, decider Decider) (*Plan, error) {
	plan := &Plan{}
	for _, result := range results {
		switch result.Status {
		case StatusMatchLocal:
			plan.Current = append(plan.Current, result)

		case StatusMatchGit, StatusMatchDeploy, StatusMissing:
			plan.Items = append(plan.Items, Item{Result: result, Kind: Upload})

		case StatusDiffHash:
			decision, err := decider.Resolve(result)
			if err != nil {
				return nil, errors.WithContext(err, "resolve conflict")
			}
			switch decision {
			case Replace:
				plan.Items = append(plan.Items, Item{Result: result, Kind: Upload})
			case Keep:
				plan.Items = append(plan.Items, Item{Result: result, Kind: BackupOnly})
			default:
				return nil, ErrAborted
			}

		default:
			return nil, errors.New("size-only results cannot be planned")
		}
	}
	return plan, nil
}
