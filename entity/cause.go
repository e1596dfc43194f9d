package entity

// CascadingDeletionCause links a cascaded change to the deletion that
// triggered it. Parent is nil at the entity whose deletion was requested
// directly.
type CascadingDeletionCause struct {
	Entity Entity
	Parent *CascadingDeletionCause
}

// NewCascadingDeletionCause extends parent with ent.
func NewCascadingDeletionCause(ent Entity, parent *CascadingDeletionCause) *CascadingDeletionCause {
	return &CascadingDeletionCause{Entity: ent, Parent: parent}
}

// Root returns the cause at the top of the chain.
func (c *CascadingDeletionCause) Root() *CascadingDeletionCause {
	if c == nil {
		return nil
	}
	for c.Parent != nil {
		c = c.Parent
	}
	return c
}

// Depth returns the number of links in the chain.
func (c *CascadingDeletionCause) Depth() int {
	n := 0
	for ; c != nil; c = c.Parent {
		n++
	}
	return n
}

// Involves reports whether any link in the chain is an entity of kind.
func (c *CascadingDeletionCause) Involves(kind string) bool {
	for ; c != nil; c = c.Parent {
		if c.Entity != nil && c.Entity.Kind() == kind {
			return true
		}
	}
	return false
}

// Names reports whether ent is the immediate parent of this step.
func (c *CascadingDeletionCause) Names(ent Entity) bool {
	if c == nil || c.Entity == nil || ent == nil {
		return false
	}
	return c.Entity.UniqueIdentifier() == ent.UniqueIdentifier()
}
