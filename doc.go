// The tenantscope-package isolates tenants of a shared database at the data-access layer.
//
// You start by describing your entities and how each of them belongs to a tenant:
//
//	schema := tenantscope.Schema{
//		"Room": {
//			Table:  "rooms",
//			Fields: map[string]tenantscope.FieldType{"id": tenantscope.FieldString, "tenantId": tenantscope.FieldString, "status": tenantscope.FieldString},
//		},
//		"Guest": {
//			Table:     "guests",
//			Fields:    map[string]tenantscope.FieldType{"id": tenantscope.FieldString, "name": tenantscope.FieldString},
//			Relations: map[string]tenantscope.Relation{"bookings": {Entity: "Booking", LocalKey: "id", ForeignKey: "guestId"}},
//		},
//		// ...
//	}
//	policy, err := tenantscope.NewPolicy(schema, tenantscope.PolicyMap{
//		"Room":    tenantscope.Direct("tenantId"),
//		"Booking": tenantscope.Direct("tenantId"),
//		"Guest":   tenantscope.Associative("bookings", tenantscope.AnyRelated),
//		"Amenity": tenantscope.Unscoped(),
//	})
//
// With a [Storage]-implementation available (see the storage-directory), every
// request handler derives its own [RestrictedClient] from the verified caller:
//
//	identity := tenantscope.Identity{Role: tenantscope.RoleManager, HomeTenant: "hotel-a"}
//	client, err := tenantscope.NewRestrictedClient(storage, policy, identity, selection)
//	if errors.Is(err, tenantscope.ErrNoTenantContext) {
//		// deny the request
//	}
//	// Only rooms of "hotel-a" are touched, whatever selection said:
//	n, err := client.UpdateMany(ctx, "Room", tenantscope.Filter{"status": "DIRTY"}, tenantscope.Record{"status": "AVAILABLE"})
//
// Reads, counts, updates and deletes of directly scoped entities get the tenant
// field pinned in their filter, creates get it stamped into every record.
// Associatively scoped entities are filtered through their relation.
//
// The hotel-package contains the schema and policy of the hotel platform.
package tenantscope
