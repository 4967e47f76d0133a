package testsuite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trevex/tenantscope"
	"github.com/trevex/tenantscope/hotel"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Fixture references the records written by [Load]. Every call to Load uses
// two fresh tenants, so fixtures of earlier runs never interfere.
type Fixture struct {
	TenantA tenantscope.TenantID
	TenantB tenantscope.TenantID
	// IDs maps fixture names (a1, alice, k1, ...) to record ids.
	IDs map[string]string
}

// ID panics for unknown names to keep typos from turning into empty filters.
func (f Fixture) ID(name string) string {
	id, ok := f.IDs[name]
	if !ok {
		panic("unknown fixture " + name)
	}
	return id
}

func (f Fixture) IDsOf(names ...string) []any {
	ids := make([]any, 0, len(names))
	for _, name := range names {
		ids = append(ids, f.ID(name))
	}
	return ids
}

// Load writes two properties and their rooms, guests, bookings, staff and
// invoices through the unrestricted storage:
//
//	room a1 (DIRTY), a2 (AVAILABLE) at A; b1, b2 (DIRTY) at B
//	alice booked at A, bob at A and B, carol at B, dave nowhere
func Load(ctx context.Context, storage tenantscope.Storage) (Fixture, error) {
	suffix, err := tenantscope.NewID()
	if err != nil {
		return Fixture{}, err
	}
	f := Fixture{
		TenantA: tenantscope.TenantID("hotel-a-" + suffix),
		TenantB: tenantscope.TenantID("hotel-b-" + suffix),
		IDs:     map[string]string{},
	}
	a, b := string(f.TenantA), string(f.TenantB)

	l := loader{ctx: ctx, storage: storage, fixture: f}
	l.create(hotel.Property, "A", tenantscope.Record{"id": a, "name": "Hotel A", "timezone": "Europe/Berlin"})
	l.create(hotel.Property, "B", tenantscope.Record{"id": b, "name": "Hotel B", "timezone": "Europe/Lisbon"})

	l.create(hotel.Room, "a1", tenantscope.Record{"tenantId": a, "number": "101", "floor": 1, "kind": "DOUBLE", "status": "DIRTY"})
	l.create(hotel.Room, "a2", tenantscope.Record{"tenantId": a, "number": "102", "floor": 1, "kind": "SINGLE", "status": "AVAILABLE"})
	l.create(hotel.Room, "b1", tenantscope.Record{"tenantId": b, "number": "101", "floor": 1, "kind": "DOUBLE", "status": "DIRTY"})
	l.create(hotel.Room, "b2", tenantscope.Record{"tenantId": b, "number": "102", "floor": 1, "kind": "SUITE", "status": "DIRTY"})

	for _, name := range []string{"alice", "bob", "carol", "dave"} {
		l.create(hotel.Guest, name, tenantscope.Record{"firstName": name, "lastName": "Test", "email": name + "-" + suffix + "@example.com"})
	}

	booking := func(tenant, room, guest string) tenantscope.Record {
		return tenantscope.Record{
			"tenantId": tenant, "roomId": l.id(room), "guestId": l.id(guest),
			"checkIn": "2024-05-01", "checkOut": "2024-05-03", "status": "CONFIRMED", "totalCents": 24000,
		}
	}
	l.create(hotel.Booking, "k1", booking(a, "a1", "alice"))
	l.create(hotel.Booking, "k2", booking(a, "a2", "bob"))
	l.create(hotel.Booking, "k3", booking(b, "b1", "bob"))
	l.create(hotel.Booking, "k4", booking(b, "b2", "carol"))

	l.create(hotel.StaffMember, "sa", tenantscope.Record{"tenantId": a, "name": "Ana", "role": "HOUSEKEEPING", "active": true})
	l.create(hotel.StaffMember, "sb", tenantscope.Record{"tenantId": b, "name": "Ben", "role": "FRONT_DESK", "active": true})
	l.create(hotel.Invoice, "i1", tenantscope.Record{"tenantId": a, "bookingId": l.id("k1"), "amountCents": 24000, "paid": false})
	l.create(hotel.Amenity, "wifi", tenantscope.Record{"name": "wifi-" + suffix, "description": "Wireless internet"})

	return f, l.err
}

type loader struct {
	ctx     context.Context
	storage tenantscope.Storage
	fixture Fixture
	err     error
}

func (l *loader) id(name string) string {
	return l.fixture.IDs[name]
}

func (l *loader) create(entity, name string, record tenantscope.Record) {
	if l.err != nil {
		return
	}
	if _, ok := record["id"]; !ok {
		id, err := tenantscope.NewID()
		if err != nil {
			l.err = err
			return
		}
		record["id"] = id
	}
	_, err := l.storage.Execute(l.ctx, tenantscope.Request{Op: tenantscope.OpCreateOne, Entity: entity, Data: []tenantscope.Record{record}})
	if err != nil {
		l.err = err
		return
	}
	l.fixture.IDs[name] = record["id"].(string)
}

type TestConfig struct {
	Storage tenantscope.Storage
}

func RunTestAll(t *testing.T, configs map[string]TestConfig) {
	for name, config := range configs {
		t.Run(name, func(t *testing.T) {
			RunTest(t, config.Storage)
		})
	}
}

type test struct {
	name string
	run  func(t *testing.T, storage tenantscope.Storage, f Fixture)
}

// RunTest runs every isolation property against storage. Each test loads its
// own fixture, so tests that mutate records do not affect the others.
func RunTest(t *testing.T, storage tenantscope.Storage) {
	tests := []test{
		{"no_cross_tenant_read", testNoCrossTenantRead},
		{"no_cross_tenant_write", testNoCrossTenantWrite},
		{"create_is_stamped", testCreateIsStamped},
		{"resolution", testResolution},
		{"associative", testAssociative},
		{"idempotence", testIdempotence},
		{"unscoped_and_unlisted", testUnscopedAndUnlisted},
		{"pagination", testPagination},
		{"storage_errors", testStorageErrors},
		{"scenario", testScenario},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := Load(context.Background(), storage)
			require.NoError(t, err)
			tc.run(t, storage, f)
		})
	}
}

func bind(t testing.TB, storage tenantscope.Storage, tenant tenantscope.TenantID, opts ...tenantscope.Option) *tenantscope.RestrictedClient {
	client, err := tenantscope.Bind(storage, hotel.Policy, tenant, opts...)
	require.NoError(t, err)
	return client
}

func ids(records []tenantscope.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r["id"].(string))
	}
	slices.Sort(out)
	return out
}

func sorted(ids ...any) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.(string))
	}
	slices.Sort(out)
	return out
}

func readBase(t *testing.T, storage tenantscope.Storage, entity, id string) tenantscope.Record {
	res, err := storage.Execute(context.Background(), tenantscope.Request{Op: tenantscope.OpReadOne, Entity: entity, Where: tenantscope.Filter{"id": id}})
	require.NoError(t, err)
	return res.Records[0]
}

func testNoCrossTenantRead(t *testing.T, storage tenantscope.Storage, f Fixture) {
	ctx := context.Background()
	client := bind(t, storage, f.TenantB)
	rooms := f.IDsOf("a1", "a2", "b1", "b2")

	records, err := client.FindMany(ctx, hotel.Room, tenantscope.Filter{"id": tenantscope.In(rooms...)}, tenantscope.Page{})
	require.NoError(t, err)
	require.Equal(t, sorted(f.IDsOf("b1", "b2")...), ids(records))
	for _, r := range records {
		require.Equal(t, string(f.TenantB), r["tenantId"])
	}

	// A filter naming the other tenant is overwritten.
	records, err = client.FindMany(ctx, hotel.Room, tenantscope.Filter{"id": tenantscope.In(rooms...), "tenantId": string(f.TenantA)}, tenantscope.Page{})
	require.NoError(t, err)
	require.Equal(t, sorted(f.IDsOf("b1", "b2")...), ids(records))

	count, err := client.Count(ctx, hotel.Room, tenantscope.Filter{"id": tenantscope.In(f.IDsOf("a1", "a2")...), "tenantId": string(f.TenantA)})
	require.NoError(t, err)
	require.Equal(t, 0, count)

	_, err = client.FindOne(ctx, hotel.Room, tenantscope.Filter{"id": f.ID("a1")})
	require.ErrorIs(t, err, tenantscope.ErrNotFound)
	_, err = client.FindOne(ctx, hotel.Booking, tenantscope.Filter{"id": f.ID("k1")})
	require.ErrorIs(t, err, tenantscope.ErrNotFound)
	_, err = client.FindOne(ctx, hotel.Invoice, tenantscope.Filter{"bookingId": f.ID("k1")})
	require.ErrorIs(t, err, tenantscope.ErrNotFound)
	_, err = client.FindOne(ctx, hotel.Property, tenantscope.Filter{"id": string(f.TenantA)})
	require.ErrorIs(t, err, tenantscope.ErrNotFound)

	property, err := client.FindOne(ctx, hotel.Property, tenantscope.Filter{})
	require.NoError(t, err)
	require.Equal(t, string(f.TenantB), property["id"])

	// Relations to another tenant's records do not open them up either.
	records, err = client.FindMany(ctx, hotel.Room, tenantscope.Filter{"bookings": tenantscope.Some(tenantscope.Filter{"id": f.ID("k1")})}, tenantscope.Page{})
	require.NoError(t, err)
	require.Empty(t, records)
}

func testNoCrossTenantWrite(t *testing.T, storage tenantscope.Storage, f Fixture) {
	ctx := context.Background()
	client := bind(t, storage, f.TenantB)

	_, err := client.UpdateOne(ctx, hotel.Room, tenantscope.Filter{"id": f.ID("a1")}, tenantscope.Record{"status": "OUT_OF_ORDER"})
	require.ErrorIs(t, err, tenantscope.ErrNotFound)
	n, err := client.UpdateMany(ctx, hotel.Room, tenantscope.Filter{"id": tenantscope.In(f.IDsOf("a1", "a2")...), "tenantId": string(f.TenantA)}, tenantscope.Record{"status": "OUT_OF_ORDER"})
	require.NoError(t, err)
	require.Equal(t, 0, n)
	_, err = client.DeleteOne(ctx, hotel.Room, tenantscope.Filter{"id": f.ID("a1")})
	require.ErrorIs(t, err, tenantscope.ErrNotFound)
	n, err = client.DeleteMany(ctx, hotel.Room, tenantscope.Filter{"id": tenantscope.In(f.IDsOf("a1", "a2")...)})
	require.NoError(t, err)
	require.Equal(t, 0, n)

	require.Equal(t, "DIRTY", readBase(t, storage, hotel.Room, f.ID("a1"))["status"])
	require.Equal(t, "AVAILABLE", readBase(t, storage, hotel.Room, f.ID("a2"))["status"])

	// An update cannot move a record into another tenant.
	updated, err := client.UpdateOne(ctx, hotel.Room, tenantscope.Filter{"id": f.ID("b1")}, tenantscope.Record{"status": "INSPECTED", "tenantId": string(f.TenantA)})
	require.NoError(t, err)
	require.Equal(t, string(f.TenantB), updated["tenantId"])
	require.Equal(t, "INSPECTED", updated["status"])
	require.Equal(t, string(f.TenantB), readBase(t, storage, hotel.Room, f.ID("b1"))["tenantId"])

	// Properties are scoped by their own id, a foreign id matches nothing.
	_, err = client.DeleteOne(ctx, hotel.Property, tenantscope.Filter{"id": string(f.TenantA)})
	require.ErrorIs(t, err, tenantscope.ErrNotFound)
	_, err = client.UpdateOne(ctx, hotel.Property, tenantscope.Filter{"id": string(f.TenantA)}, tenantscope.Record{"name": "Hotel A (taken over)"})
	require.ErrorIs(t, err, tenantscope.ErrNotFound)
	require.Equal(t, "Hotel A", readBase(t, storage, hotel.Property, string(f.TenantA))["name"])
	require.Equal(t, "Hotel B", readBase(t, storage, hotel.Property, string(f.TenantB))["name"])
	n, err = client.UpdateMany(ctx, hotel.Property, tenantscope.Filter{}, tenantscope.Record{"name": "Hotel B (renovated)"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "Hotel A", readBase(t, storage, hotel.Property, string(f.TenantA))["name"])

	deleted, err := client.DeleteOne(ctx, hotel.Room, tenantscope.Filter{"id": f.ID("b2")})
	require.NoError(t, err)
	require.Equal(t, f.ID("b2"), deleted["id"])
	_, err = storage.Execute(ctx, tenantscope.Request{Op: tenantscope.OpReadOne, Entity: hotel.Room, Where: tenantscope.Filter{"id": f.ID("b2")}})
	require.ErrorIs(t, err, tenantscope.ErrNotFound)
}

func testCreateIsStamped(t *testing.T, storage tenantscope.Storage, f Fixture) {
	ctx := context.Background()
	client := bind(t, storage, f.TenantA)

	forged, err := client.CreateOne(ctx, hotel.Room, tenantscope.Record{"number": "201", "status": "AVAILABLE", "tenantId": string(f.TenantB)})
	require.NoError(t, err)
	require.Equal(t, string(f.TenantA), forged["tenantId"])
	require.NotEmpty(t, forged["id"])
	require.Equal(t, string(f.TenantA), readBase(t, storage, hotel.Room, forged["id"].(string))["tenantId"])

	absent, err := client.CreateOne(ctx, hotel.MaintenanceTicket, tenantscope.Record{"roomId": f.ID("a1"), "title": "Leaking tap", "priority": "HIGH", "status": "OPEN"})
	require.NoError(t, err)
	require.Equal(t, string(f.TenantA), absent["tenantId"])

	first, err := tenantscope.NewID()
	require.NoError(t, err)
	second, err := tenantscope.NewID()
	require.NoError(t, err)
	n, err := client.CreateMany(ctx, hotel.TimeEntry, []tenantscope.Record{
		{"id": first, "staffId": f.ID("sa"), "clockIn": "2024-05-01T08:00:00Z", "tenantId": string(f.TenantB)},
		{"id": second, "staffId": f.ID("sa"), "clockIn": "2024-05-02T08:00:00Z"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	res, err := storage.Execute(ctx, tenantscope.Request{Op: tenantscope.OpCount, Entity: hotel.TimeEntry, Where: tenantscope.Filter{"id": tenantscope.In(first, second), "tenantId": string(f.TenantA)}})
	require.NoError(t, err)
	require.Equal(t, 2, res.Count)
}

func testResolution(t *testing.T, storage tenantscope.Storage, f Fixture) {
	ctx := context.Background()

	staff := tenantscope.Identity{Role: tenantscope.RoleStaff, HomeTenant: f.TenantA}
	client, err := tenantscope.NewRestrictedClient(storage, hotel.Policy, staff, f.TenantB)
	require.NoError(t, err)
	require.Equal(t, f.TenantA, client.Tenant())
	records, err := client.FindMany(ctx, hotel.Room, tenantscope.Filter{"id": tenantscope.In(f.IDsOf("a1", "a2", "b1", "b2")...)}, tenantscope.Page{})
	require.NoError(t, err)
	require.Equal(t, sorted(f.IDsOf("a1", "a2")...), ids(records))

	admin := tenantscope.Identity{Role: tenantscope.RoleAdmin}
	_, err = tenantscope.NewRestrictedClient(storage, hotel.Policy, admin, "")
	require.ErrorIs(t, err, tenantscope.ErrNoTenantContext)

	// Admins are never defaulted to their home tenant.
	_, err = tenantscope.NewRestrictedClient(storage, hotel.Policy, tenantscope.Identity{Role: tenantscope.RoleAdmin, HomeTenant: f.TenantA}, "")
	require.ErrorIs(t, err, tenantscope.ErrNoTenantContext)

	client, err = tenantscope.NewRestrictedClient(storage, hotel.Policy, admin, f.TenantB)
	require.NoError(t, err)
	count, err := client.Count(ctx, hotel.Room, tenantscope.Filter{"id": tenantscope.In(f.IDsOf("a1", "a2", "b1", "b2")...)})
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func testAssociative(t *testing.T, storage tenantscope.Storage, f Fixture) {
	ctx := context.Background()
	guests := tenantscope.Filter{"id": tenantscope.In(f.IDsOf("alice", "bob", "carol", "dave")...)}

	records, err := bind(t, storage, f.TenantA).FindMany(ctx, hotel.Guest, guests, tenantscope.Page{})
	require.NoError(t, err)
	require.Equal(t, sorted(f.IDsOf("alice", "bob")...), ids(records))

	records, err = bind(t, storage, f.TenantB).FindMany(ctx, hotel.Guest, guests, tenantscope.Page{})
	require.NoError(t, err)
	require.Equal(t, sorted(f.IDsOf("bob", "carol")...), ids(records))

	_, err = bind(t, storage, f.TenantA).FindOne(ctx, hotel.Guest, tenantscope.Filter{"id": f.ID("carol")})
	require.ErrorIs(t, err, tenantscope.ErrNotFound)
	_, err = bind(t, storage, f.TenantA).UpdateOne(ctx, hotel.Guest, tenantscope.Filter{"id": f.ID("carol")}, tenantscope.Record{"phone": "+000"})
	require.ErrorIs(t, err, tenantscope.ErrNotFound)
	n, err := bind(t, storage, f.TenantA).DeleteMany(ctx, hotel.Guest, tenantscope.Filter{"id": f.ID("dave")})
	require.NoError(t, err)
	require.Equal(t, 0, n)

	// Guests with a stay at another property are hidden under OnlyRelated.
	entries := maps.Clone(hotel.Policies)
	entries[hotel.Guest] = tenantscope.Associative("bookings", tenantscope.OnlyRelated)
	strict, err := tenantscope.NewPolicy(hotel.Schema, entries)
	require.NoError(t, err)

	client, err := tenantscope.Bind(storage, strict, f.TenantA)
	require.NoError(t, err)
	records, err = client.FindMany(ctx, hotel.Guest, guests, tenantscope.Page{})
	require.NoError(t, err)
	require.Equal(t, []string{f.ID("alice")}, ids(records))

	client, err = tenantscope.Bind(storage, strict, f.TenantB)
	require.NoError(t, err)
	count, err := client.Count(ctx, hotel.Guest, guests)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func testIdempotence(t *testing.T, storage tenantscope.Storage, f Fixture) {
	ctx := context.Background()
	client := bind(t, storage, f.TenantA)
	where := tenantscope.Filter{"status": "DIRTY", "tenantId": string(f.TenantB)}
	req := tenantscope.Request{Op: tenantscope.OpReadMany, Entity: hotel.Room, Where: where}

	first, err := client.Scope(req)
	require.NoError(t, err)
	second, err := client.Scope(req)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, tenantscope.Filter{"status": "DIRTY", "tenantId": string(f.TenantB)}, where)

	a, err := client.Execute(ctx, req)
	require.NoError(t, err)
	b, err := client.Execute(ctx, req)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, []string{f.ID("a1")}, ids(a.Records))
}

func testUnscopedAndUnlisted(t *testing.T, storage tenantscope.Storage, f Fixture) {
	ctx := context.Background()
	where := tenantscope.Filter{"id": f.ID("wifi")}

	for _, tenant := range []tenantscope.TenantID{f.TenantA, f.TenantB} {
		amenity, err := bind(t, storage, tenant).FindOne(ctx, hotel.Amenity, where)
		require.NoError(t, err)
		require.Equal(t, readBase(t, storage, hotel.Amenity, f.ID("wifi")), amenity)
	}

	created, err := bind(t, storage, f.TenantA).CreateOne(ctx, hotel.Amenity, tenantscope.Record{"name": "parking", "description": "Underground"})
	require.NoError(t, err)
	require.Equal(t, "parking", created["name"])

	// A policy that does not know amenities at all.
	schema := maps.Clone(hotel.Schema)
	delete(schema, hotel.Amenity)
	entries := maps.Clone(hotel.Policies)
	delete(entries, hotel.Amenity)
	partial, err := tenantscope.NewPolicy(schema, entries)
	require.NoError(t, err)

	client, err := tenantscope.Bind(storage, partial, f.TenantA)
	require.NoError(t, err)
	_, err = client.FindOne(ctx, hotel.Amenity, where)
	require.ErrorIs(t, err, tenantscope.ErrUnlistedEntity)

	client, err = tenantscope.Bind(storage, partial, f.TenantA, tenantscope.AllowUnlisted())
	require.NoError(t, err)
	amenity, err := client.FindOne(ctx, hotel.Amenity, where)
	require.NoError(t, err)
	require.Equal(t, f.ID("wifi"), amenity["id"])
}

func testPagination(t *testing.T, storage tenantscope.Storage, f Fixture) {
	ctx := context.Background()
	client := bind(t, storage, f.TenantB)

	all, err := client.FindMany(ctx, hotel.Booking, tenantscope.Filter{}, tenantscope.Page{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.True(t, slices.IsSorted([]string{all[0]["id"].(string), all[1]["id"].(string)}))

	page, err := client.FindMany(ctx, hotel.Booking, tenantscope.Filter{}, tenantscope.Page{Limit: 1})
	require.NoError(t, err)
	require.Equal(t, all[:1], page)

	page, err = client.FindMany(ctx, hotel.Booking, tenantscope.Filter{}, tenantscope.Page{After: page[0]["id"].(string), Limit: 1})
	require.NoError(t, err)
	require.Equal(t, all[1:], page)

	page, err = client.FindMany(ctx, hotel.Booking, tenantscope.Filter{}, tenantscope.Page{After: all[1]["id"].(string)})
	require.NoError(t, err)
	require.Empty(t, page)
}

func testStorageErrors(t *testing.T, storage tenantscope.Storage, f Fixture) {
	ctx := context.Background()
	client := bind(t, storage, f.TenantA)

	_, err := client.CreateOne(ctx, hotel.Room, tenantscope.Record{"id": f.ID("a1"), "number": "999"})
	require.ErrorIs(t, err, tenantscope.ErrAlreadyExists)
	require.Equal(t, "101", readBase(t, storage, hotel.Room, f.ID("a1"))["number"])

	_, err = client.FindMany(ctx, hotel.Room, tenantscope.Filter{"colour": "red"}, tenantscope.Page{})
	require.ErrorIs(t, err, tenantscope.ErrUnknownField)

	_, err = client.UpdateMany(ctx, hotel.Room, tenantscope.Filter{}, tenantscope.Record{"floor": "first"})
	require.ErrorIs(t, err, tenantscope.ErrInvalidValue)

	// A failing bulk create leaves nothing behind.
	fresh, err := tenantscope.NewID()
	require.NoError(t, err)
	_, err = client.CreateMany(ctx, hotel.Room, []tenantscope.Record{
		{"id": fresh, "number": "301"},
		{"id": f.ID("a2"), "number": "302"},
	})
	require.ErrorIs(t, err, tenantscope.ErrAlreadyExists)
	_, err = storage.Execute(ctx, tenantscope.Request{Op: tenantscope.OpReadOne, Entity: hotel.Room, Where: tenantscope.Filter{"id": fresh}})
	require.ErrorIs(t, err, tenantscope.ErrNotFound)
}

// testScenario: a manager of A forges a selection of B and marks dirty rooms available.
func testScenario(t *testing.T, storage tenantscope.Storage, f Fixture) {
	ctx := context.Background()
	manager := tenantscope.Identity{Role: tenantscope.RoleManager, HomeTenant: f.TenantA}
	client, err := tenantscope.NewRestrictedClient(storage, hotel.Policy, manager, f.TenantB)
	require.NoError(t, err)
	require.Equal(t, f.TenantA, client.Tenant())

	req := tenantscope.Request{
		Op:     tenantscope.OpUpdateMany,
		Entity: hotel.Room,
		Where:  tenantscope.Filter{"status": "DIRTY"},
		Data:   []tenantscope.Record{{"status": "AVAILABLE"}},
	}
	scoped, err := client.Scope(req)
	require.NoError(t, err)
	require.Equal(t, tenantscope.Filter{"status": "DIRTY", "tenantId": string(f.TenantA)}, scoped.Where)

	res, err := client.Execute(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)

	require.Equal(t, "AVAILABLE", readBase(t, storage, hotel.Room, f.ID("a1"))["status"])
	require.Equal(t, "DIRTY", readBase(t, storage, hotel.Room, f.ID("b1"))["status"])
	require.Equal(t, "DIRTY", readBase(t, storage, hotel.Room, f.ID("b2"))["status"])
}

func RunBenchmarkAll(b *testing.B, storages map[string]tenantscope.Storage) {
	for name, storage := range storages {
		b.Run(name, func(b *testing.B) {
			RunBenchmark(b, storage)
		})
	}
}

func RunBenchmark(b *testing.B, storage tenantscope.Storage) {
	ctx := context.Background()
	f, err := Load(ctx, storage)
	require.NoError(b, err)
	client := bind(b, storage, f.TenantA)

	b.Run("direct", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, err := client.FindMany(ctx, hotel.Room, tenantscope.Filter{"status": "DIRTY"}, tenantscope.Page{})
			require.NoError(b, err)
		}
	})
	b.Run("associative", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, err := client.FindMany(ctx, hotel.Guest, tenantscope.Filter{"id": f.ID("bob")}, tenantscope.Page{})
			require.NoError(b, err)
		}
	})
}
