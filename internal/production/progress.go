package production

import (
	"math"
	"time"

	"halcyon.studio/cinema/internal/domain"
)

// tracker turns stage boundaries into monotonically increasing
// progress events.
type tracker struct {
	broker  *Broker
	now     func() time.Time
	started time.Time

	done    int // weight of finished or skipped stages
	current domain.Progress
}

func newTracker(broker *Broker, now func() time.Time) *tracker {
	return &tracker{broker: broker, now: now, started: now()}
}

func (t *tracker) enter(spec StageSpec) {
	t.emit(spec.Name, t.done, taskFor(spec.Name))
}

// within reports fractional progress inside the current stage.
func (t *tracker) within(spec StageSpec, fraction float64, task string) {
	fraction = math.Max(0, math.Min(1, fraction))
	t.emit(spec.Name, t.done+int(float64(spec.Weight)*fraction), task)
}

func (t *tracker) leave(spec StageSpec) {
	t.done += spec.Weight
	t.emit(spec.Name, t.done, taskFor(spec.Name)+" done")
}

func (t *tracker) skip(spec StageSpec) {
	t.done += spec.Weight
}

func (t *tracker) complete() {
	t.emit(domain.StageComplete, 100, "Production complete")
}

func (t *tracker) fail(stage domain.Stage, task string) {
	t.current.Stage = domain.StageFailed
	t.current.CurrentTask = string(stage) + ": " + task
	t.current.EstimatedTimeRemaining = 0
	t.publish()
}

func (t *tracker) emit(stage domain.Stage, pct int, task string) {
	pct = min(max(pct, t.current.Progress), 100)
	t.current = domain.Progress{
		Stage:                  stage,
		Progress:               pct,
		CurrentTask:            task,
		EstimatedTimeRemaining: t.eta(pct),
	}
	t.publish()
}

func (t *tracker) publish() {
	if t.broker != nil {
		t.broker.Publish(t.current)
	}
}

// eta extrapolates linearly from elapsed time, in whole seconds.
func (t *tracker) eta(pct int) int {
	if pct <= 0 || pct >= 100 {
		return 0
	}
	elapsed := t.now().Sub(t.started).Seconds()
	return int(math.Ceil(elapsed * float64(100-pct) / float64(pct)))
}

func taskFor(stage domain.Stage) string {
	switch stage {
	case domain.StageInitializing:
		return "Preparing production"
	case domain.StageGeneratingVideo:
		return "Generating video"
	case domain.StageGeneratingAudio:
		return "Generating music"
	case domain.StageGeneratingVoiceover:
		return "Generating voiceover"
	case domain.StageGeneratingCaptions:
		return "Generating captions"
	case domain.StageMixing:
		return "Mixing"
	default:
		return string(stage)
	}
}
