package trace

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/meridian-sim/meridian/pkg/events"
	"github.com/meridian-sim/meridian/pkg/job"
)

var (
	// Bucket names
	bucketEvents  = []byte("events")
	bucketJobs    = []byte("jobs")
	bucketActions = []byte("actions")
)

// eventRecord is the persisted form of one simulation event.
type eventRecord struct {
	Seq         int     `json:"seq"`
	Type        string  `json:"type"`
	VirtualTime float64 `json:"virtual_time"`
	Job         string  `json:"job,omitempty"`
	Action      string  `json:"action,omitempty"`
	Service     string  `json:"service,omitempty"`
	Host        string  `json:"host,omitempty"`
	Cause       string  `json:"cause,omitempty"`
}

// attemptRecord is one execution attempt of an action.
type attemptRecord struct {
	StartDate float64 `json:"start_date"`
	EndDate   float64 `json:"end_date"`
	Host      string  `json:"host"`
	NumCores  int     `json:"num_cores"`
	RAM       float64 `json:"ram"`
}

// actionRecord is the persisted outcome of one action.
type actionRecord struct {
	Job      string          `json:"job"`
	Name     string          `json:"name"`
	Kind     string          `json:"kind"`
	State    string          `json:"state"`
	Cause    string          `json:"cause,omitempty"`
	Attempts []attemptRecord `json:"attempts"`
}

// jobRecord is the persisted outcome of one job.
type jobRecord struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// Recorder accumulates the event sequence of a run and writes it, plus the
// terminal job and action states, into a bolt file at flush time. It
// subscribes to the broker's synchronous handler path, so the persisted
// order is the run's deterministic event order.
type Recorder struct {
	path   string
	events []*events.Event
}

// NewRecorder builds a recorder targeting a bolt file path.
func NewRecorder(path string) *Recorder {
	return &Recorder{path: path}
}

// Handler returns the broker handler feeding the recorder.
func (r *Recorder) Handler() events.Handler {
	return func(ev *events.Event) {
		r.events = append(r.events, ev)
	}
}

// Events returns the recorded sequence.
func (r *Recorder) Events() []*events.Event { return r.events }

// Flush writes everything recorded plus the terminal state of the given
// jobs. The file is recreated on every run; traces are results, not state.
func (r *Recorder) Flush(jobs []*job.CompoundJob) error {
	db, err := bolt.Open(r.path, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketEvents, bucketJobs, bucketActions} {
			if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}

		eb := tx.Bucket(bucketEvents)
		for i, ev := range r.events {
			rec := eventRecord{
				Seq: i, Type: string(ev.Type), VirtualTime: ev.VirtualTime,
				Job: ev.Job, Action: ev.Action, Service: ev.Service, Host: ev.Host, Cause: ev.Cause,
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := eb.Put([]byte(fmt.Sprintf("%012d", i)), data); err != nil {
				return err
			}
		}

		jb := tx.Bucket(bucketJobs)
		ab := tx.Bucket(bucketActions)
		for _, j := range jobs {
			data, err := json.Marshal(jobRecord{Name: j.Name(), State: j.State().String()})
			if err != nil {
				return err
			}
			if err := jb.Put([]byte(j.Name()), data); err != nil {
				return err
			}
			for _, a := range j.Actions() {
				rec := actionRecord{
					Job: j.Name(), Name: a.Name(), Kind: a.Kind().String(), State: a.State().String(),
				}
				if a.FailureCause() != nil {
					rec.Cause = a.FailureCause().Error()
				}
				for _, at := range a.Attempts() {
					rec.Attempts = append(rec.Attempts, attemptRecord{
						StartDate: at.StartDate, EndDate: at.EndDate, Host: at.Host, NumCores: at.NumCores, RAM: at.RAM,
					})
				}
				data, err := json.Marshal(rec)
				if err != nil {
					return err
				}
				if err := ab.Put([]byte(j.Name()+"/"+a.Name()), data); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
