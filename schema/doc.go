// Package schema describes entity kinds: their table, fields, cacheable
// lookups, privacy policy, triggers and the associations that drive
// cascading deletion.
//
// Configurations are registered in a Registry, which also builds the inbound
// edge adjacency list used to find the entities referencing a given kind:
//
//	reg := schema.NewRegistry()
//	err := reg.Register(&schema.Config{
//		Kind:    "team",
//		IDField: "id",
//		Fields: []schema.Field{
//			{Name: "id", Cache: true},
//			{Name: "org_id", Association: &schema.Association{
//				Kind:     "org",
//				OnDelete: schema.CascadeDelete,
//			}},
//		},
//		Policy: privacy.Policy{Read: []privacy.Rule{privacy.AlwaysAllow()}},
//	})
package schema
