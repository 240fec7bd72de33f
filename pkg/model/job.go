package model

import "iter"

// JobType is the action a job performs.
type JobType int

// Job types.
const (
	JobInstall JobType = iota + 1
	JobUpgrade
	JobRemove
)

func (t JobType) String() string {
	switch t {
	case JobInstall:
		return "install"
	case JobUpgrade:
		return "upgrade"
	case JobRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Job is one pending action on a package.
type Job struct {
	Type    JobType
	Package *Package
	// OldVersion and OldFlatSize describe the installed package an upgrade replaces.
	OldVersion  string
	OldFlatSize int64
	// Automatic overrides the package's automatic flag when it is installed.
	Automatic bool
}

// Origin returns the origin of the job's package.
func (j *Job) Origin() string {
	return j.Package.Origin
}

// JobSet is an ordered list of jobs with constant time membership by origin.
type JobSet struct {
	jobs  []*Job
	index map[string]int
}

// NewJobSet returns an empty job set.
func NewJobSet() *JobSet {
	return &JobSet{index: make(map[string]int)}
}

// Add appends job unless a job for the same origin is present. It reports whether job was added.
func (s *JobSet) Add(job *Job) bool {
	origin := job.Origin()
	if _, ok := s.index[origin]; ok {
		return false
	}
	s.index[origin] = len(s.jobs)
	s.jobs = append(s.jobs, job)
	return true
}

// Contains reports whether a job for origin is queued.
func (s *JobSet) Contains(origin string) bool {
	_, ok := s.index[origin]
	return ok
}

// Get returns the job for origin.
func (s *JobSet) Get(origin string) (*Job, bool) {
	i, ok := s.index[origin]
	if !ok {
		return nil, false
	}
	return s.jobs[i], true
}

// Len returns the number of jobs.
func (s *JobSet) Len() int {
	return len(s.jobs)
}

// Jobs returns the jobs in order. The slice must not be modified.
func (s *JobSet) Jobs() []*Job {
	return s.jobs
}

// All iterates over the jobs in order.
func (s *JobSet) All() iter.Seq[*Job] {
	return func(yield func(*Job) bool) {
		for _, j := range s.jobs {
			if !yield(j) {
				return
			}
		}
	}
}
