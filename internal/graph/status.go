package graph

// Status is the lifecycle state of one job instance or gate node.
type Status int32

const (
	Pending Status = iota
	Running
	Succeeded
	Failed
	Cancelled
	Skipped
)

// Terminal reports whether the status is final: once terminal, a node's
// status never changes again.
func (s Status) Terminal() bool {
	switch s {
	case Succeeded, Failed, Cancelled, Skipped:
		return true
	}
	return false
}

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}
