package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"geofence-events/internal/domain/geofence"
	"geofence-events/internal/ports"
)

// EventRepo appends geofence events to geofence_events.
type EventRepo struct {
	uow ports.UnitOfWork
}

// NewEventRepo constructs a new EventRepo.
func NewEventRepo(uow ports.UnitOfWork) ports.EventStore {
	return &EventRepo{uow: uow}
}

// Save inserts one event. Re-saving the same id is a no-op.
func (repo *EventRepo) Save(ctx context.Context, event geofence.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	// context is stored as jsonb next to the indexed columns
	details, err := json.Marshal(event.Context)
	if err != nil {
		return fmt.Errorf("marshal event context: %w", err)
	}

	return repo.uow.WithinTx(ctx, func(ctx context.Context) error {
		tx, err := MustTxFromContext(ctx)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO geofence_events (
				id, vehicle_id, organization_id,
				zone_id, park_id, event_type,
				location, context, occurred_at
			)
			VALUES (
				$1, $2, $3,
				NULLIF($4, ''), NULLIF($5, ''), $6,
				ST_SetSRID(ST_MakePoint($7, $8), 4326), $9::jsonb, $10
			)
			ON CONFLICT (id) DO NOTHING
		`,
			event.ID,
			event.VehicleID,
			event.OrganizationID,
			event.ZoneID,
			event.ParkID,
			event.Type.String(),
			event.Coordinates.Longitude,
			event.Coordinates.Latitude,
			string(details),
			event.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert geofence event: %w", err)
		}
		return nil
	})
}
