package tenantscope_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trevex/tenantscope"
)

type recorder struct {
	requests []tenantscope.Request
	result   tenantscope.Result
	err      error
}

func newRecorder() *recorder {
	return &recorder{}
}

func (r *recorder) Execute(ctx context.Context, req tenantscope.Request) (tenantscope.Result, error) {
	r.requests = append(r.requests, req)
	return r.result, r.err
}

func (r *recorder) Close() error {
	return nil
}

var testSchema = tenantscope.Schema{
	"Room": {
		Table:  "rooms",
		Fields: map[string]tenantscope.FieldType{"id": tenantscope.FieldString, "tenantId": tenantscope.FieldString, "status": tenantscope.FieldString},
	},
	"Booking": {
		Table: "bookings",
		Fields: map[string]tenantscope.FieldType{
			"id": tenantscope.FieldString, "tenantId": tenantscope.FieldString, "guestId": tenantscope.FieldString, "vendorId": tenantscope.FieldString,
		},
	},
	"Guest": {
		Table:     "guests",
		Fields:    map[string]tenantscope.FieldType{"id": tenantscope.FieldString, "email": tenantscope.FieldString},
		Relations: map[string]tenantscope.Relation{"bookings": {Entity: "Booking", LocalKey: "id", ForeignKey: "guestId"}},
	},
	"Vendor": {
		Table:     "vendors",
		Fields:    map[string]tenantscope.FieldType{"id": tenantscope.FieldString, "name": tenantscope.FieldString},
		Relations: map[string]tenantscope.Relation{"bookings": {Entity: "Booking", LocalKey: "id", ForeignKey: "vendorId"}},
	},
	"Amenity": {
		Table:  "amenities",
		Fields: map[string]tenantscope.FieldType{"id": tenantscope.FieldString, "name": tenantscope.FieldString},
	},
}

func testPolicy(t *testing.T) *tenantscope.Policy {
	policy, err := tenantscope.NewPolicy(testSchema, tenantscope.PolicyMap{
		"Room":    tenantscope.Direct("tenantId"),
		"Booking": tenantscope.Direct("tenantId"),
		"Guest":   tenantscope.Associative("bookings", tenantscope.AnyRelated),
		"Vendor":  tenantscope.Associative("bookings", tenantscope.OnlyRelated),
		"Amenity": tenantscope.Unscoped(),
	})
	require.NoError(t, err)
	return policy
}

func bindTo(t *testing.T, storage tenantscope.Storage, tenant tenantscope.TenantID, opts ...tenantscope.Option) *tenantscope.RestrictedClient {
	client, err := tenantscope.Bind(storage, testPolicy(t), tenant, opts...)
	require.NoError(t, err)
	return client
}

func TestScopeDirectPinsTenant(t *testing.T) {
	client := bindTo(t, newRecorder(), "hotel-a")

	for _, op := range []tenantscope.Op{
		tenantscope.OpReadOne, tenantscope.OpReadMany, tenantscope.OpCount,
		tenantscope.OpUpdateOne, tenantscope.OpUpdateMany,
		tenantscope.OpDeleteOne, tenantscope.OpDeleteMany,
	} {
		t.Run(op.String(), func(t *testing.T) {
			for _, where := range []tenantscope.Filter{
				nil,
				{"status": "DIRTY"},
				{"status": "DIRTY", "tenantId": "hotel-b"},
				{"status": "DIRTY", "tenantId": tenantscope.In("hotel-a", "hotel-b")},
			} {
				req := tenantscope.Request{Op: op, Entity: "Room", Where: where}
				scoped, err := client.Scope(req)
				require.NoError(t, err)
				expected := tenantscope.Filter{"tenantId": "hotel-a"}
				if where != nil {
					expected["status"] = "DIRTY"
				}
				require.Equal(t, expected, scoped.Where)
			}
		})
	}
}

func TestScopeDirectOnPrimaryKey(t *testing.T) {
	schema := tenantscope.Schema{
		"Property": {
			Table:  "properties",
			Fields: map[string]tenantscope.FieldType{"id": tenantscope.FieldString, "name": tenantscope.FieldString},
		},
	}
	policy, err := tenantscope.NewPolicy(schema, tenantscope.PolicyMap{"Property": tenantscope.Direct("id")})
	require.NoError(t, err)
	storage := newRecorder()
	client, err := tenantscope.Bind(storage, policy, "hotel-b")
	require.NoError(t, err)

	for _, op := range []tenantscope.Op{tenantscope.OpReadOne, tenantscope.OpUpdateOne, tenantscope.OpDeleteOne} {
		t.Run(op.String(), func(t *testing.T) {
			req := tenantscope.Request{Op: op, Entity: "Property", Where: tenantscope.Filter{"id": "hotel-a"}}
			if op == tenantscope.OpUpdateOne {
				req.Data = []tenantscope.Record{{"name": "Hotel A (renamed)"}}
			}
			scoped, err := client.Scope(req)
			require.NoError(t, err)
			// Both ids have to match, which no record can.
			require.Equal(t, tenantscope.Filter{tenantscope.And: []tenantscope.Filter{
				{"id": "hotel-a"},
				{"id": "hotel-b"},
			}}, scoped.Where)
			require.Equal(t, req.Data, scoped.Data)
		})
	}

	scoped, err := client.Scope(tenantscope.Request{Op: tenantscope.OpReadMany, Entity: "Property"})
	require.NoError(t, err)
	require.Equal(t, tenantscope.Filter{tenantscope.And: []tenantscope.Filter{{"id": "hotel-b"}}}, scoped.Where)
}

func TestScopeUpdateStampsPayload(t *testing.T) {
	client := bindTo(t, newRecorder(), "hotel-a")
	data := tenantscope.Record{"status": "AVAILABLE", "tenantId": "hotel-b"}

	scoped, err := client.Scope(tenantscope.Request{
		Op:     tenantscope.OpUpdateMany,
		Entity: "Room",
		Where:  tenantscope.Filter{"id": "r1"},
		Data:   []tenantscope.Record{data},
	})
	require.NoError(t, err)
	require.Equal(t, []tenantscope.Record{{"status": "AVAILABLE", "tenantId": "hotel-a"}}, scoped.Data)
	require.Equal(t, "hotel-b", data["tenantId"])
}

func TestScopeCreateStampsEveryRecord(t *testing.T) {
	client := bindTo(t, newRecorder(), "hotel-a")

	scoped, err := client.Scope(tenantscope.Request{
		Op:     tenantscope.OpCreateOne,
		Entity: "Room",
		Data:   []tenantscope.Record{{"status": "DIRTY", "tenantId": "hotel-b"}},
	})
	require.NoError(t, err)
	require.Equal(t, []tenantscope.Record{{"status": "DIRTY", "tenantId": "hotel-a"}}, scoped.Data)
	require.Nil(t, scoped.Where)

	data := []tenantscope.Record{
		{"status": "DIRTY", "tenantId": "hotel-b"},
		{"status": "AVAILABLE"},
		{"status": "DIRTY", "tenantId": nil},
	}
	scoped, err = client.Scope(tenantscope.Request{Op: tenantscope.OpCreateMany, Entity: "Booking", Data: data})
	require.NoError(t, err)
	require.Len(t, scoped.Data, 3)
	for _, r := range scoped.Data {
		require.Equal(t, "hotel-a", r["tenantId"])
	}
	require.Equal(t, "hotel-b", data[0]["tenantId"])
	require.NotContains(t, data[1], "tenantId")
}

func TestScopeAssociative(t *testing.T) {
	client := bindTo(t, newRecorder(), "hotel-a")

	scoped, err := client.Scope(tenantscope.Request{Op: tenantscope.OpReadMany, Entity: "Guest", Where: tenantscope.Filter{"email": "bob@example.com"}})
	require.NoError(t, err)
	require.Equal(t, tenantscope.Filter{tenantscope.And: []tenantscope.Filter{
		{"email": "bob@example.com"},
		{"bookings": tenantscope.Some(tenantscope.Filter{"tenantId": "hotel-a"})},
	}}, scoped.Where)

	// A caller supplied predicate on the same relation cannot replace the injected one.
	scoped, err = client.Scope(tenantscope.Request{Op: tenantscope.OpDeleteMany, Entity: "Guest", Where: tenantscope.Filter{
		"bookings": tenantscope.Some(tenantscope.Filter{"tenantId": "hotel-b"}),
	}})
	require.NoError(t, err)
	require.Equal(t, tenantscope.Filter{tenantscope.And: []tenantscope.Filter{
		{"bookings": tenantscope.Some(tenantscope.Filter{"tenantId": "hotel-b"})},
		{"bookings": tenantscope.Some(tenantscope.Filter{"tenantId": "hotel-a"})},
	}}, scoped.Where)

	scoped, err = client.Scope(tenantscope.Request{Op: tenantscope.OpCount, Entity: "Vendor"})
	require.NoError(t, err)
	require.Equal(t, tenantscope.Filter{tenantscope.And: []tenantscope.Filter{
		{"bookings": tenantscope.Some(tenantscope.Filter{"tenantId": "hotel-a"})},
		{"bookings": tenantscope.None(tenantscope.Filter{"tenantId": tenantscope.Ne("hotel-a")})},
	}}, scoped.Where)

	create := tenantscope.Request{Op: tenantscope.OpCreateOne, Entity: "Guest", Data: []tenantscope.Record{{"email": "eve@example.com"}}}
	scoped, err = client.Scope(create)
	require.NoError(t, err)
	require.Equal(t, create, scoped)
}

func TestScopeIsIdempotent(t *testing.T) {
	storage := newRecorder()
	client := bindTo(t, storage, "hotel-a")
	where := tenantscope.Filter{"status": "DIRTY", "tenantId": "hotel-b"}
	req := tenantscope.Request{Op: tenantscope.OpReadMany, Entity: "Room", Where: where}

	first, err := client.Scope(req)
	require.NoError(t, err)
	second, err := client.Scope(req)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, tenantscope.Filter{"status": "DIRTY", "tenantId": "hotel-b"}, where)

	ctx := context.Background()
	_, err = client.Execute(ctx, req)
	require.NoError(t, err)
	_, err = client.Execute(ctx, req)
	require.NoError(t, err)
	require.Len(t, storage.requests, 2)
	require.Equal(t, storage.requests[0], storage.requests[1])
	require.Equal(t, first, storage.requests[0])
}

func TestScopeUnscopedAndUnlisted(t *testing.T) {
	storage := newRecorder()
	ctx := context.Background()

	unscoped := tenantscope.Request{Op: tenantscope.OpUpdateMany, Entity: "Amenity", Where: tenantscope.Filter{"name": "wifi"}, Data: []tenantscope.Record{{"name": "WiFi"}}}
	_, err := bindTo(t, storage, "hotel-a").Execute(ctx, unscoped)
	require.NoError(t, err)
	require.Equal(t, []tenantscope.Request{unscoped}, storage.requests)

	unlisted := tenantscope.Request{Op: tenantscope.OpCreateMany, Entity: "AuditLog", Data: []tenantscope.Record{{"tenantId": "hotel-b"}}}
	_, err = bindTo(t, storage, "hotel-a").Execute(ctx, unlisted)
	require.ErrorIs(t, err, tenantscope.ErrUnlistedEntity)
	require.Len(t, storage.requests, 1)

	_, err = bindTo(t, storage, "hotel-a", tenantscope.AllowUnlisted()).Execute(ctx, unlisted)
	require.NoError(t, err)
	require.Equal(t, []tenantscope.Request{unscoped, unlisted}, storage.requests)
}

func TestExecuteForwardsOnce(t *testing.T) {
	storage := newRecorder()
	storage.result = tenantscope.Result{Records: []tenantscope.Record{{"id": "r1"}}, Count: 1}
	client := bindTo(t, storage, "hotel-a", tenantscope.WithLogger(slog.Default()))
	ctx := context.Background()

	r, err := client.FindOne(ctx, "Room", tenantscope.Filter{"id": "r1"})
	require.NoError(t, err)
	require.Equal(t, tenantscope.Record{"id": "r1"}, r)
	records, err := client.FindMany(ctx, "Room", nil, tenantscope.Page{Limit: 5})
	require.NoError(t, err)
	require.Len(t, records, 1)
	n, err := client.Count(ctx, "Room", nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = client.UpdateOne(ctx, "Room", tenantscope.Filter{"id": "r1"}, tenantscope.Record{"status": "DIRTY"})
	require.NoError(t, err)
	_, err = client.UpdateMany(ctx, "Room", nil, tenantscope.Record{"status": "DIRTY"})
	require.NoError(t, err)
	_, err = client.DeleteOne(ctx, "Room", tenantscope.Filter{"id": "r1"})
	require.NoError(t, err)
	_, err = client.DeleteMany(ctx, "Room", nil)
	require.NoError(t, err)
	_, err = client.CreateOne(ctx, "Room", tenantscope.Record{"status": "DIRTY"})
	require.NoError(t, err)
	_, err = client.CreateMany(ctx, "Room", []tenantscope.Record{{"status": "DIRTY"}})
	require.NoError(t, err)

	require.Len(t, storage.requests, len(tenantscope.Ops()))
	for i, op := range tenantscope.Ops() {
		require.Equal(t, op, storage.requests[i].Op)
	}
	require.Equal(t, tenantscope.Page{Limit: 5}, storage.requests[1].Page)
}

func TestExecutePassesStorageErrors(t *testing.T) {
	storage := newRecorder()
	storageErr := errors.New("unique constraint violated")
	storage.err = storageErr
	client := bindTo(t, storage, "hotel-a")

	_, err := client.Execute(context.Background(), tenantscope.Request{Op: tenantscope.OpCreateOne, Entity: "Room", Data: []tenantscope.Record{{}}})
	require.True(t, err == storageErr)

	storage.err = tenantscope.ErrNotFound
	_, err = client.FindOne(context.Background(), "Room", tenantscope.Filter{"id": "r1"})
	require.True(t, err == tenantscope.ErrNotFound)
}

func TestUnknownOp(t *testing.T) {
	storage := newRecorder()
	client := bindTo(t, storage, "hotel-a")

	_, err := client.Execute(context.Background(), tenantscope.Request{Op: tenantscope.Op(99), Entity: "Room"})
	require.ErrorIs(t, err, tenantscope.ErrUnknownOp)
	require.Empty(t, storage.requests)

	_, err = tenantscope.ParseOp("upsert")
	require.ErrorIs(t, err, tenantscope.ErrUnknownOp)
	for _, op := range tenantscope.Ops() {
		parsed, err := tenantscope.ParseOp(op.String())
		require.NoError(t, err)
		require.Equal(t, op, parsed)
	}
}

func TestBind(t *testing.T) {
	_, err := tenantscope.Bind(newRecorder(), testPolicy(t), "")
	require.ErrorIs(t, err, tenantscope.ErrNoTenantContext)

	_, err = tenantscope.Bind(nil, testPolicy(t), "hotel-a")
	require.Error(t, err)

	client, err := tenantscope.Bind(newRecorder(), testPolicy(t), "hotel-a")
	require.NoError(t, err)
	require.Equal(t, tenantscope.TenantID("hotel-a"), client.Tenant())
}

func TestForgedSelectionScenario(t *testing.T) {
	storage := newRecorder()
	storage.result = tenantscope.Result{Count: 3}
	manager := tenantscope.Identity{Role: tenantscope.RoleManager, HomeTenant: "hotel-A"}

	client, err := tenantscope.NewRestrictedClient(storage, testPolicy(t), manager, "hotel-B")
	require.NoError(t, err)
	require.Equal(t, tenantscope.TenantID("hotel-A"), client.Tenant())

	n, err := client.UpdateMany(context.Background(), "Room", tenantscope.Filter{"status": "DIRTY"}, tenantscope.Record{"status": "AVAILABLE"})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	require.Len(t, storage.requests, 1)
	require.Equal(t, tenantscope.Filter{"status": "DIRTY", "tenantId": "hotel-A"}, storage.requests[0].Where)
	require.Equal(t, []tenantscope.Record{{"status": "AVAILABLE", "tenantId": "hotel-A"}}, storage.requests[0].Data)
}
