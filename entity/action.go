package entity

// Action is the operation a privacy policy is evaluated for.
type Action int

const (
	ActionCreate Action = iota
	ActionRead
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionRead:
		return "read"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// MutationType is the kind of write a trigger or validator runs for.
type MutationType int

const (
	MutationCreate MutationType = iota
	MutationUpdate
	MutationDelete
)

func (t MutationType) String() string {
	switch t {
	case MutationCreate:
		return "create"
	case MutationUpdate:
		return "update"
	case MutationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// MutationInfo is passed to triggers and mutation validators.
type MutationInfo struct {
	Type MutationType
	// Previous is the entity before an update, nil otherwise.
	Previous Entity
	// Cause is non-nil when the mutation runs as part of a cascading deletion.
	Cause *CascadingDeletionCause
}
