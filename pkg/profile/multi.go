package profile

// Node carries the motion parameters of one queued command.
type Node struct {
	StartPos float64
	StartVel float64
	StartAcc float64 // reserved

	EndPos float64
	EndVel float64
	EndAcc float64 // reserved

	Vel  float64
	Acc  float64
	Dec  float64
	Jerk float64 // reserved
}

// Multi plans queued command nodes back to back from the state the axis
// is actually in when each node starts.
type Multi struct {
	Planner
}

// NewMulti creates a node planner sampling at DefaultFrequency.
func NewMulti() *Multi {
	m := &Multi{}
	m.Reset()
	return m
}

// PlanNode plans from the given start state to the node's end state.
// startAcc is accepted for jerk-limited profiles and currently ignored.
func (m *Multi) PlanNode(n *Node, startPos, startVel, startAcc float64) Result {
	return m.Plan(startPos, n.EndPos, startVel, n.Vel, n.EndVel, n.Acc, n.Dec)
}
