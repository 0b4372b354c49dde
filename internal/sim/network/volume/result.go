package volume

type Status int

const (
	Completed Status = iota
	CompletedWithExcess
	CompletedWithShortage
	Failed
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "COMPLETED"
	case CompletedWithExcess:
		return "COMPLETED_WITH_EXCESS"
	case CompletedWithShortage:
		return "COMPLETED_WITH_SHORTAGE"
	default:
		return "FAILED"
	}
}

// Result reports the outcome of a container mutation. Partial completion is not an
// error; the caller decides whether Actual is good enough.
type Result struct {
	Status  Status
	Desired float64
	Actual  float64
}

func (r Result) OK() bool { return r.Status != Failed }

// Delta is the unfulfilled part of the request.
func (r Result) Delta() float64 { return r.Desired - r.Actual }
