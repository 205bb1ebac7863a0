package deploy

import (
	"time"

	"github.com/voicekit/xttsdeploy/internal/build"
	"github.com/voicekit/xttsdeploy/internal/config"
	"github.com/voicekit/xttsdeploy/internal/health"
)

// Outcome is the terminal state of a deployment run.
type Outcome string

// Deployment outcomes.
const (
	OutcomePending    Outcome = "pending"
	OutcomeHealthy    Outcome = "healthy"
	OutcomeUnhealthy  Outcome = "unhealthy"
	OutcomeRolledBack Outcome = "rolled-back"
)

// Stage names, in pipeline order.
const (
	StageProvisioning = "provisioning"
	StageBuilding     = "building"
	StageActivating   = "activating"
	StageVerifying    = "verifying"
)

// Record is the audit trail of one deployment run: which host served it,
// which artifact ended up running, every build attempt, and the full
// health probe history. A reader must be able to tell from the record
// alone whether a degraded fallback build is serving.
type Record struct {
	Host          string
	InstanceID    string
	Artifact      string
	BuildAttempts []build.Attempt
	Workload      config.WorkloadConfig
	StartedAt     time.Time
	FinishedAt    time.Time
	Outcome       Outcome
	Health        []health.Result
	Err           error
}

// Degraded reports whether the serving artifact came from a fallback
// variant rather than the first choice.
func (r *Record) Degraded() bool {
	if len(r.BuildAttempts) == 0 {
		return false
	}
	return r.BuildAttempts[0].Outcome != build.OutcomeSuccess
}
