package control

// CycleForm is the operator's cycle input plus the at-most-one in-flight submission.
type CycleForm struct {
	Green    string
	Red      string
	Pending  bool
	InFlight *Cycle
}

type SubmitResult string

const (
	Submitted SubmitResult = "submitted"
	Invalid   SubmitResult = "invalid"
	Busy      SubmitResult = "busy"
)

// Submit validates the inputs and marks the form pending. Invalid input leaves the form
// untouched; a second submission while one is pending is rejected.
func (f *CycleForm) Submit() (Cycle, SubmitResult) {
	if f.Pending {
		return Cycle{}, Busy
	}
	c, ok := ParseCycle(f.Green, f.Red)
	if !ok {
		return Cycle{}, Invalid
	}
	f.Pending = true
	f.InFlight = &c
	return c, Submitted
}

// Settle runs once the request completes, whatever its outcome.
func (f *CycleForm) Settle() {
	f.Pending = false
	f.InFlight = nil
	f.Green = ""
	f.Red = ""
}
