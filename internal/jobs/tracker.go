package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/protocol"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type LogLevel string

const (
	LevelInfo   LogLevel = "info"
	LevelWarn   LogLevel = "warn"
	LevelError  LogLevel = "error"
	LevelPlan   LogLevel = "plan"
	LevelTool   LogLevel = "tool"
	LevelMemory LogLevel = "memory"
)

type LogEntry struct {
	ID        string
	Timestamp time.Time
	Level     LogLevel
	Message   string
}

// Job is one tracked background execution. Logs are append-only and
// strictly ordered per job.
type Job struct {
	ID        string
	AgentID   string
	Name      string
	Detail    string
	Status    Status
	Progress  int
	Logs      []LogEntry
	StartTime time.Time
}

func (j Job) clone() Job {
	out := j
	if len(j.Logs) > 0 {
		out.Logs = make([]LogEntry, len(j.Logs))
		copy(out.Logs, j.Logs)
	}
	return out
}

// Tracker owns all job records. Every mutation funnels through Update,
// keyed by id, so overlapping asynchronous completions cannot lose writes.
// Jobs are not session-scoped and survive session switches.
type Tracker struct {
	jobs  map[string]*Job
	order []string
	now   func() time.Time
	logf  func(format string, args ...any)
}

func NewTracker(logf func(format string, args ...any)) *Tracker {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Tracker{
		jobs: make(map[string]*Job),
		now:  func() time.Time { return time.Now().UTC() },
		logf: logf,
	}
}

// Create registers a new job in pending state and seeds its log with the
// command-received and routing entries.
func (t *Tracker) Create(agentID, name, detail string) Job {
	if t == nil {
		return Job{}
	}
	agent := strings.TrimSpace(agentID)
	title := strings.TrimSpace(name)
	if title == "" {
		title = "untitled"
	}
	now := t.now()
	job := &Job{
		ID:        protocol.NewID("job"),
		AgentID:   agent,
		Name:      title,
		Detail:    strings.TrimSpace(detail),
		Status:    StatusPending,
		StartTime: now,
	}
	job.Logs = append(job.Logs,
		t.newEntry(LevelInfo, fmt.Sprintf("Command received: %s", title)),
		t.newEntry(LevelInfo, fmt.Sprintf("Routing to agent %s", agent)),
	)
	t.jobs[job.ID] = job
	t.order = append(t.order, job.ID)
	t.logf("jobs: created id=%s agent=%s name=%s", job.ID, agent, title)
	return job.clone()
}

// Update is the single mutator for a job record. Updates to jobs already
// in a terminal state are refused. Progress is clamped to 0..100 after fn
// runs. Returns a copy of the updated record.
func (t *Tracker) Update(id string, fn func(*Job)) (Job, bool) {
	if t == nil {
		return Job{}, false
	}
	job, ok := t.jobs[strings.TrimSpace(id)]
	if !ok {
		return Job{}, false
	}
	if job.Status.Terminal() {
		t.logf("jobs: ignoring update to terminal job id=%s status=%s", job.ID, job.Status)
		return job.clone(), false
	}
	if fn != nil {
		fn(job)
	}
	if job.Progress < 0 {
		job.Progress = 0
	}
	if job.Progress > 100 {
		job.Progress = 100
	}
	return job.clone(), true
}

// AppendLog adds one entry to a job's log via the central updater.
func (t *Tracker) AppendLog(id string, level LogLevel, message string) (Job, bool) {
	return t.Update(id, func(j *Job) {
		j.Logs = append(j.Logs, t.newEntry(level, message))
	})
}

func (t *Tracker) newEntry(level LogLevel, message string) LogEntry {
	return LogEntry{
		ID:        protocol.NewID("log"),
		Timestamp: t.now(),
		Level:     level,
		Message:   message,
	}
}

func (t *Tracker) Get(id string) (Job, bool) {
	if t == nil {
		return Job{}, false
	}
	job, ok := t.jobs[strings.TrimSpace(id)]
	if !ok {
		return Job{}, false
	}
	return job.clone(), true
}

// Jobs returns copies of all jobs, newest first.
func (t *Tracker) Jobs() []Job {
	if t == nil || len(t.order) == 0 {
		return nil
	}
	out := make([]Job, 0, len(t.order))
	for i := len(t.order) - 1; i >= 0; i-- {
		if job, ok := t.jobs[t.order[i]]; ok {
			out = append(out, job.clone())
		}
	}
	return out
}

func (t *Tracker) Len() int {
	if t == nil {
		return 0
	}
	return len(t.jobs)
}

// Prune drops terminal jobs started before the cutoff. Running jobs are
// never pruned. Reports how many were removed.
func (t *Tracker) Prune(cutoff time.Time) int {
	if t == nil || cutoff.IsZero() {
		return 0
	}
	removed := 0
	keep := t.order[:0]
	for _, id := range t.order {
		job, ok := t.jobs[id]
		if !ok {
			continue
		}
		if job.Status.Terminal() && job.StartTime.Before(cutoff) {
			delete(t.jobs, id)
			removed++
			continue
		}
		keep = append(keep, id)
	}
	t.order = keep
	if removed > 0 {
		t.logf("jobs: pruned %d terminal job(s)", removed)
	}
	return removed
}
