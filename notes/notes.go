// The diagnostic rule engine: an ordered list of rules over the job's metadata and efficiencies,
// each contributing at most one advisory note.
//
// Rules run strictly in order.  The zero-GPU and zero-CPU rules record their outcome in the
// evaluation and some later rules consult it: a job that did not touch its GPUs gets no advice about
// low GPU utilization, and a job that left a node idle gets no advice about low CPU utilization or
// memory over-allocation.

package notes

import (
	"strings"

	"github.com/gobwas/glob"

	"jobstats/aggregate"
	"jobstats/config"
	"jobstats/efficiency"
	"jobstats/slurm"
)

type Severity int

const (
	Normal Severity = iota
	Bold
	BoldRed
)

func (s Severity) String() string {
	switch s {
	case Bold:
		return "bold"
	case BoldRed:
		return "bold-red"
	default:
		return "normal"
	}
}

// A Note is a paragraph of advice followed by optional reference lines (links, commands, Slurm
// directives) and possibly more text.  Notes are immutable once made.

type Note struct {
	Severity Severity
	Items    []string
}

func newNote(severity Severity, items ...string) Note {
	return Note{Severity: severity, Items: items}
}

// Text is the note as one string without layout, for machine consumers.

func (n Note) Text() string {
	return strings.Join(n.Items, " ")
}

// IsReference is true for items that are set off on their own line instead of being wrapped.

func IsReference(item string) bool {
	for _, prefix := range []string{"http", "ftp", "$ ", "#SBATCH"} {
		if strings.HasPrefix(item, prefix) {
			return true
		}
	}
	return false
}

// Job-name classes.  OnDemand sessions run as sys/dashboard/sys/<app>, salloc sessions are called
// "interactive".
var (
	jupyterSession   = glob.MustCompile("*sys/dashboard/sys/jupyter*")
	dashboardSession = glob.MustCompile("*sys/dashboard/sys/*")
)

const interactiveName = "interactive"

type Engine struct {
	cfg *config.Config
}

// NewEngine captures the configuration; the engine is stateless otherwise and can be shared.

func NewEngine(cfg *config.Config) *Engine {
	return &Engine{cfg: cfg}
}

// evaluation is the state of one run of the rules over one job.
type evaluation struct {
	cfg     *config.Config
	t       config.Thresholds
	links   config.Links
	cluster config.Cluster
	job     *slurm.Job
	agg     *aggregate.Result
	eff     *efficiency.Efficiency
	runtime int64

	zeroGPU bool
	zeroCPU bool

	notes []Note
}

func (ev *evaluation) add(severity Severity, items ...string) {
	ev.notes = append(ev.notes, newNote(severity, items...))
}

// Evaluate runs every rule in order and returns the notes of the rules that fired, in rule order.

func (e *Engine) Evaluate(job *slurm.Job, agg *aggregate.Result, eff *efficiency.Efficiency) []Note {
	ev := &evaluation{
		cfg:     e.cfg,
		t:       e.cfg.Thresholds,
		links:   e.cfg.Links,
		cluster: e.cfg.Cluster(job.Cluster),
		job:     job,
		agg:     agg,
		eff:     eff,
		runtime: job.Runtime(),
		notes:   make([]Note, 0),
	}
	for _, rule := range rules {
		rule(ev)
	}
	return ev.notes
}
