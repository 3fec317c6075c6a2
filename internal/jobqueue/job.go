package jobqueue

// Job is one unit of work for the conversion engine. Source related fields
// are only set when the output type consumes an input file.
type Job struct {
	Type          string   `json:"type" validate:"required"`
	MainType      string   `json:"maintype" validate:"required"`
	EntryID       int      `json:"ebook" validate:"gt=0"`
	OutputDir     string   `json:"outputdir" validate:"required"`
	OutputFile    string   `json:"outputfile" validate:"required"`
	LogFile       string   `json:"logfile" validate:"required"`
	URL           string   `json:"url,omitempty" validate:"omitempty,uri"`
	Include       []string `json:"include_urls,omitempty" validate:"omitempty,dive,required"`
	MaxDepth      int      `json:"max_depth,omitempty" validate:"gte=0"`
	Source        string   `json:"source,omitempty" validate:"omitempty,url"`
	OPFIdentifier string   `json:"opf_identifier,omitempty" validate:"omitempty,url"`
}

// Outcome classifies what happened to one requested output type.
type Outcome string

const (
	Queued               Outcome = "queued"
	SkippedUpToDate      Outcome = "skipped_up_to_date"
	SkippedNoSource      Outcome = "skipped_no_source"
	SkippedExcluded      Outcome = "skipped_excluded"
	SkippedOversize      Outcome = "skipped_oversize"
	SkippedIneligible    Outcome = "skipped_ineligible"
	SkippedMissingSource Outcome = "skipped_missing_source"
	SkippedError         Outcome = "skipped_error"
)

// Skipped reports whether the outcome produced no job.
func (o Outcome) Skipped() bool { return o != Queued }

// TypeOutcome records the decision for one output type.
type TypeOutcome struct {
	Type    string
	Outcome Outcome
	Reason  string
	// Source is the chosen candidate path, when one was selected.
	Source string
}

// Plan is the result of building the queue for one entry.
type Plan struct {
	EntryID  int
	Jobs     []Job
	Outcomes []TypeOutcome
}

// Outcome returns the recorded outcome for a type.
func (p Plan) Outcome(typeName string) (TypeOutcome, bool) {
	for _, o := range p.Outcomes {
		if o.Type == typeName {
			return o, true
		}
	}
	return TypeOutcome{}, false
}

// JobTypes lists the queued types in order.
func (p Plan) JobTypes() []string {
	out := make([]string, 0, len(p.Jobs))
	for _, job := range p.Jobs {
		out = append(out, job.Type)
	}
	return out
}

// Failed lists the types that could not be planned because of an error.
func (p Plan) Failed() []TypeOutcome {
	var out []TypeOutcome
	for _, o := range p.Outcomes {
		if o.Outcome == SkippedError {
			out = append(out, o)
		}
	}
	return out
}
