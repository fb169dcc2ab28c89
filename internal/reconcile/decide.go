package reconcile

import "fmt"

// Action names the branch Decide took for one cell.
type Action int

const (
	// ActionNone leaves local, shadow and remote untouched.
	ActionNone Action = iota
	// ActionConflict means both sides changed the cell to different values.
	// The remote value wins; the local value is demoted into the shadow.
	ActionConflict
	// ActionAdoptRemote means only the peer changed the cell.
	ActionAdoptRemote
	// ActionPushLocal means only this side changed the cell; it is pushed.
	ActionPushLocal
	// ActionSettle means both sides already hold the same value but the
	// shadow lags behind (after a conflict, or identical concurrent writes).
	// The shadow adopts the agreed value; nothing is pushed.
	ActionSettle
)

var actionNames = map[Action]string{
	ActionNone:        "none",
	ActionConflict:    "conflict",
	ActionAdoptRemote: "adopt_remote",
	ActionPushLocal:   "push_local",
	ActionSettle:      "settle",
}

// String returns the action's snake_case name.
func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Outcome is the result of deciding one cell.
type Outcome struct {
	Action Action
	// Local is the new local value.
	Local uint16
	// Shadow is the new shadow value.
	Shadow uint16
	// Push is set when Local must be written to the peer.
	Push bool
}

// Decide applies the three-way merge rule to one cell.
//
// It is a pure function of its arguments: the address and the order in which
// cells are decided do not matter.
//
//	conflict      remote != local && local != shadow && remote != shadow
//	              shadow <- local, local <- remote
//	adopt remote  remote != local && local == shadow
//	              local, shadow <- remote
//	push local    remote == shadow && local != shadow
//	              shadow <- local, push local
//	settle        remote == local && shadow != local
//	              shadow <- local
//	none          otherwise
func Decide(local, shadow, remote uint16) Outcome {
	switch {
	case remote != local && local != shadow && remote != shadow:
		return Outcome{Action: ActionConflict, Local: remote, Shadow: local}
	case remote != local && local == shadow:
		return Outcome{Action: ActionAdoptRemote, Local: remote, Shadow: remote}
	case remote == shadow && local != shadow:
		return Outcome{Action: ActionPushLocal, Local: local, Shadow: local, Push: true}
	case remote == local && shadow != local:
		return Outcome{Action: ActionSettle, Local: local, Shadow: local}
	}
	return Outcome{Action: ActionNone, Local: local, Shadow: shadow}
}

// changesLocal reports whether applying o rewrites the local cell.
func (o Outcome) changesLocal() bool {
	return o.Action == ActionConflict || o.Action == ActionAdoptRemote
}

// changesShadow reports whether applying o rewrites the shadow cell.
func (o Outcome) changesShadow() bool {
	return o.Action != ActionNone
}
