package jobs

import (
	"fmt"
	"time"
)

// Step is one increment of a simulated execution: wait Delay, then apply
// the status/progress change and append the log entry.
type Step struct {
	Delay    time.Duration
	Status   Status // "" leaves status unchanged
	Progress int    // -1 leaves progress unchanged
	Level    LogLevel
	Message  string
}

// ExecutionScript returns the deterministic progression for a job. The
// caller (the event loop) replays the steps through ApplyStep, one timer
// per step, so every mutation still flows through the tracker's central
// updater.
func ExecutionScript(job Job) []Step {
	return []Step{
		{Delay: 400 * time.Millisecond, Status: StatusActive, Progress: 10, Level: LevelPlan, Message: fmt.Sprintf("Execution plan prepared for %s", job.Name)},
		{Delay: 700 * time.Millisecond, Progress: 35, Level: LevelTool, Message: fmt.Sprintf("Invoking %s", job.Name)},
		{Delay: 700 * time.Millisecond, Progress: 60, Level: LevelMemory, Message: "Recording intermediate results"},
		{Delay: 700 * time.Millisecond, Progress: 85, Level: LevelTool, Message: "Collecting output"},
		{Delay: 500 * time.Millisecond, Status: StatusCompleted, Progress: 100, Level: LevelInfo, Message: fmt.Sprintf("%s completed", job.Name)},
	}
}

// FailureScript is the progression for an execution that errors out
// mid-flight.
func FailureScript(job Job, reason string) []Step {
	return []Step{
		{Delay: 400 * time.Millisecond, Status: StatusActive, Progress: 10, Level: LevelPlan, Message: fmt.Sprintf("Execution plan prepared for %s", job.Name)},
		{Delay: 700 * time.Millisecond, Progress: 40, Level: LevelTool, Message: fmt.Sprintf("Invoking %s", job.Name)},
		{Delay: 500 * time.Millisecond, Status: StatusFailed, Progress: 40, Level: LevelError, Message: reason},
	}
}

// ApplyStep runs one step through the tracker. Returns the updated job
// and whether the update was applied (terminal jobs refuse updates).
func ApplyStep(t *Tracker, id string, step Step) (Job, bool) {
	return t.Update(id, func(j *Job) {
		if step.Status != "" {
			j.Status = step.Status
		}
		if step.Progress >= 0 {
			j.Progress = step.Progress
		}
		if step.Message != "" {
			level := step.Level
			if level == "" {
				level = LevelInfo
			}
			j.Logs = append(j.Logs, t.newEntry(level, step.Message))
		}
	})
}
