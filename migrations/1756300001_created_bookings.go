package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("bookings")

		collection.Fields.Add(
			&core.TextField{Name: "order_id"},
			&core.TextField{Name: "user_id", Required: true},
			&core.TextField{Name: "vendor_id", Required: true},
			&core.TextField{Name: "turf_id", Required: true},
			&core.TextField{Name: "sport", Required: true},
			&core.TextField{Name: "date", Required: true},
			&core.TextField{Name: "time_slot", Required: true},
			// Decimal string so amounts round-trip without float drift.
			&core.TextField{Name: "amount"},
			&core.SelectField{Name: "payment_status", Values: []string{"pending", "confirmed", "refunded"}, MaxSelect: 1},
			&core.SelectField{Name: "booking_status", Values: []string{"confirmed", "cancelled"}, MaxSelect: 1},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_bookings_user", false, "user_id", "")
		// Lookups on the confirm and status paths all go through the full
		// slot identity.
		collection.AddIndex("idx_bookings_slot", false,
			"vendor_id, turf_id, sport, date, time_slot", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("bookings")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
