package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("turfs")

		collection.Fields.Add(
			&core.TextField{Name: "vendor_id", Required: true},
			&core.TextField{Name: "title", Required: true},
			&core.TextField{Name: "address"},
			&core.JSONField{Name: "sports"},
			&core.JSONField{Name: "time_slots"},
			&core.NumberField{Name: "price_per_slot"},
			// Hours of notice required for a refundable cancellation.
			// Zero falls back to the server default.
			&core.NumberField{Name: "cancellation_hours"},
			&core.BoolField{Name: "suspended"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_turfs_vendor", false, "vendor_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("turfs")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
