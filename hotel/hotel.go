// Package hotel holds the entities of the hotel operations platform and the
// table deciding how each of them is isolated per property.
package hotel

import (
	"embed"
	"io/fs"

	"github.com/trevex/tenantscope"
)

const (
	Property          = "Property"
	Room              = "Room"
	Guest             = "Guest"
	Booking           = "Booking"
	MaintenanceTicket = "MaintenanceTicket"
	StaffMember       = "StaffMember"
	TimeEntry         = "TimeEntry"
	Invoice           = "Invoice"
	Amenity           = "Amenity"
)

// TenantField is the column directly scoped entities store their property in.
const TenantField = "tenantId"

var (
	text    = tenantscope.FieldString
	integer = tenantscope.FieldInt
	boolean = tenantscope.FieldBool
)

var Schema = tenantscope.Schema{
	Property: {
		Table:  "properties",
		Fields: map[string]tenantscope.FieldType{"id": text, "name": text, "timezone": text},
	},
	Room: {
		Table: "rooms",
		Fields: map[string]tenantscope.FieldType{
			"id": text, TenantField: text, "number": text, "floor": integer, "kind": text, "status": text,
		},
		Relations: map[string]tenantscope.Relation{
			"bookings": {Entity: Booking, LocalKey: "id", ForeignKey: "roomId"},
			"tickets":  {Entity: MaintenanceTicket, LocalKey: "id", ForeignKey: "roomId"},
		},
	},
	Guest: {
		Table: "guests",
		Fields: map[string]tenantscope.FieldType{
			"id": text, "firstName": text, "lastName": text, "email": text, "phone": text,
		},
		Relations: map[string]tenantscope.Relation{
			"bookings": {Entity: Booking, LocalKey: "id", ForeignKey: "guestId"},
		},
	},
	Booking: {
		Table: "bookings",
		Fields: map[string]tenantscope.FieldType{
			"id": text, TenantField: text, "roomId": text, "guestId": text,
			"checkIn": text, "checkOut": text, "status": text, "totalCents": integer,
		},
		Relations: map[string]tenantscope.Relation{
			"guest":    {Entity: Guest, LocalKey: "guestId", ForeignKey: "id"},
			"room":     {Entity: Room, LocalKey: "roomId", ForeignKey: "id"},
			"invoices": {Entity: Invoice, LocalKey: "id", ForeignKey: "bookingId"},
		},
	},
	MaintenanceTicket: {
		Table: "maintenance_tickets",
		Fields: map[string]tenantscope.FieldType{
			"id": text, TenantField: text, "roomId": text, "title": text, "priority": text, "status": text,
		},
	},
	StaffMember: {
		Table: "staff_members",
		Fields: map[string]tenantscope.FieldType{
			"id": text, TenantField: text, "name": text, "role": text, "active": boolean,
		},
		Relations: map[string]tenantscope.Relation{
			"timeEntries": {Entity: TimeEntry, LocalKey: "id", ForeignKey: "staffId"},
		},
	},
	TimeEntry: {
		Table: "time_entries",
		Fields: map[string]tenantscope.FieldType{
			"id": text, TenantField: text, "staffId": text, "clockIn": text, "clockOut": text,
		},
	},
	Invoice: {
		Table: "invoices",
		Fields: map[string]tenantscope.FieldType{
			"id": text, TenantField: text, "bookingId": text, "amountCents": integer, "paid": boolean,
		},
	},
	Amenity: {
		Table:  "amenities",
		Fields: map[string]tenantscope.FieldType{"id": text, "name": text, "description": text},
	},
}

// Policies is the hand-maintained scoping table. A new entity needs an entry
// here, [tenantscope.NewPolicy] refuses schemas with unlisted entities.
//
// Guests are shared across properties: a guest who stayed at two hotels is
// visible to both.
var Policies = tenantscope.PolicyMap{
	Property:          tenantscope.Direct("id"),
	Room:              tenantscope.Direct(TenantField),
	Booking:           tenantscope.Direct(TenantField),
	MaintenanceTicket: tenantscope.Direct(TenantField),
	StaffMember:       tenantscope.Direct(TenantField),
	TimeEntry:         tenantscope.Direct(TenantField),
	Invoice:           tenantscope.Direct(TenantField),
	Guest:             tenantscope.Associative("bookings", tenantscope.AnyRelated),
	Amenity:           tenantscope.Unscoped(),
}

var Policy = func() *tenantscope.Policy {
	policy, err := tenantscope.NewPolicy(Schema, Policies)
	if err != nil {
		panic("hotel policy: " + err.Error())
	}
	return policy
}()

//go:embed migrations
var migrations embed.FS

// PostgresMigrations holds golang-migrate style up/down files.
var PostgresMigrations = mustSub("migrations/postgres")

// SQLiteMigrations holds one file per schema version, applied in name order.
var SQLiteMigrations = mustSub("migrations/sqlite")

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(migrations, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
