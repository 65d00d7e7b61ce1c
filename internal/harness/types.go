package harness

// Stage names, in run order.
const (
	StagePush  = "push"
	StagePrint = "print"
	StageShout = "shout"
)

// Skipped counts events each joining reader dropped because the target had
// no data.
type Skipped struct {
	Print int64 `json:"print"`
	Shout int64 `json:"shout"`
}

// Total returns the skips of both drains.
func (s Skipped) Total() int64 {
	return s.Print + s.Shout
}

// StageTrace is one executed stage, ordered by its logical sequence number.
type StageTrace struct {
	Name string `json:"name"`
	Seq  int64  `json:"seq"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation matched.
	Pass bool `json:"pass"`

	// Workers is the pool size the run used.
	Workers int `json:"workers"`

	// RunToken correlates the run's log lines.
	RunToken string `json:"run_token"`

	// Stages lists executed stages in order.
	Stages []StageTrace `json:"stages"`

	// Lines holds the shouted lines, sorted. Drain order across workers is
	// not deterministic, the set of lines is.
	Lines []string `json:"lines"`

	Skipped Skipped `json:"skipped"`

	// Errors contains expectation mismatches. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Stages: []StageTrace{},
		Lines:  []string{},
		Errors: []string{},
	}
}

// AddError adds an expectation mismatch and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
