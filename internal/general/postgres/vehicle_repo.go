package postgres

import (
	"context"
	"errors"
	"fmt"

	"geofence-events/internal/ports"

	"github.com/jackc/pgx/v5"
)

// VehicleRepo reads vehicle metadata.
type VehicleRepo struct {
	uow ports.UnitOfWork
}

// NewVehicleRepo constructs a new VehicleRepo.
func NewVehicleRepo(uow ports.UnitOfWork) ports.VehicleDirectory {
	return &VehicleRepo{uow: uow}
}

// VehicleType returns the vehicle's type, or "" when the vehicle is unknown to orgID.
func (repo *VehicleRepo) VehicleType(ctx context.Context, vehicleID, orgID string) (string, error) {
	var vehicleType string
	err := repo.uow.WithinTx(ReadOnly(ctx), func(ctx context.Context) error {
		tx, err := MustTxFromContext(ctx)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			SELECT vehicle_type
			FROM vehicles
			WHERE id = $1 AND organization_id = $2
		`, vehicleID, orgID).Scan(&vehicleType)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("query vehicle type: %w", err)
		}
		return nil
	})
	return vehicleType, err
}
