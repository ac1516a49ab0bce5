package models

import "time"

// Checkpoint is the configuration snapshot a host is rolled back to.
type Checkpoint struct {
	Address   string    `db:"address" json:"address"`
	Snapshot  string    `db:"snapshot" json:"snapshot"`
	JobID     string    `db:"job_id" json:"job_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// JobKind names the request type a job was recorded for.
type JobKind string

// Job kinds.
const (
	JobConnect  JobKind = "connect"
	JobRun      JobKind = "run"
	JobRollback JobKind = "rollback"
	JobWake     JobKind = "wake"
)

// Job records one fleet request.
type Job struct {
	ID         string    `db:"id" json:"id"`
	Kind       JobKind   `db:"kind" json:"kind"`
	Devices    int       `db:"devices" json:"devices"`
	Succeeded  int       `db:"succeeded" json:"succeeded"`
	Failed     int       `db:"failed" json:"failed"`
	Dry        bool      `db:"dry" json:"dry"`
	StartedAt  time.Time `db:"started_at" json:"started_at"`
	FinishedAt time.Time `db:"finished_at" json:"finished_at"`
}

// Tally fills the success and failure counters from host results.
func (j *Job) Tally(results []HostResult) {
	j.Devices = len(results)
	j.Succeeded, j.Failed = 0, 0
	for _, r := range results {
		if r.Failed() {
			j.Failed++
		} else {
			j.Succeeded++
		}
	}
}
