package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("slot_status")

		collection.Fields.Add(
			&core.TextField{Name: "turf_id", Required: true},
			&core.TextField{Name: "date", Required: true},
			// Nested sport -> time slot -> cell map; written only through
			// merge updates inside booking transactions.
			&core.JSONField{Name: "slots"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_slot_status_turf_date", true, "turf_id, date", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("slot_status")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
