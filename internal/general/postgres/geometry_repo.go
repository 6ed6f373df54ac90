package postgres

import (
	"context"
	"fmt"

	"geofence-events/internal/domain/geofence"
	"geofence-events/internal/ports"

	"github.com/jackc/pgx/v5"
)

// GeometryRepo answers containment and radius queries with PostGIS.
// Polygons are stored as geometry(MultiPolygon, 4326) in zones.boundary and parks.boundary.
type GeometryRepo struct {
	uow ports.UnitOfWork
}

// NewGeometryRepo constructs a new GeometryRepo.
func NewGeometryRepo(uow ports.UnitOfWork) *GeometryRepo {
	return &GeometryRepo{uow: uow}
}

var (
	_ ports.GeometryOracle = (*GeometryRepo)(nil)
	_ ports.RadiusOracle   = (*GeometryRepo)(nil)
)

// ContainingZones returns active zones of orgID whose boundary covers the point.
func (repo *GeometryRepo) ContainingZones(ctx context.Context, lon, lat float64, orgID string) ([]geofence.Zone, error) {
	zones := []geofence.Zone{}
	err := repo.uow.WithinTx(ReadOnly(ctx), func(ctx context.Context) error {
		tx, err := MustTxFromContext(ctx)
		if err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
			SELECT id, name, zone_type
			FROM zones
			WHERE organization_id = $3
			  AND is_active = true
			  AND ST_Covers(boundary, ST_SetSRID(ST_MakePoint($1, $2), 4326))
			ORDER BY id
		`, lon, lat, orgID)
		if err != nil {
			return fmt.Errorf("query containing zones: %w", err)
		}

		zones, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (geofence.Zone, error) {
			var z geofence.Zone
			err := row.Scan(&z.ID, &z.Name, &z.Type)
			return z, err
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return zones, nil
}

// ContainingParks returns active parks of orgID whose boundary covers the point.
func (repo *GeometryRepo) ContainingParks(ctx context.Context, lon, lat float64, orgID string) ([]geofence.Park, error) {
	parks := []geofence.Park{}
	err := repo.uow.WithinTx(ReadOnly(ctx), func(ctx context.Context) error {
		tx, err := MustTxFromContext(ctx)
		if err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
			SELECT id, name, identifier
			FROM parks
			WHERE organization_id = $3
			  AND is_active = true
			  AND ST_Covers(boundary, ST_SetSRID(ST_MakePoint($1, $2), 4326))
			ORDER BY id
		`, lon, lat, orgID)
		if err != nil {
			return fmt.Errorf("query containing parks: %w", err)
		}

		parks, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (geofence.Park, error) {
			var p geofence.Park
			err := row.Scan(&p.ID, &p.Name, &p.Identifier)
			return p, err
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return parks, nil
}

// RegionsWithin returns zones and parks of orgID within radiusMeters of the point,
// nearest first. Distance is 0 for regions that contain the point.
func (repo *GeometryRepo) RegionsWithin(ctx context.Context, lon, lat, radiusMeters float64, orgID string) ([]ports.NearbyRegion, error) {
	regions := []ports.NearbyRegion{}
	err := repo.uow.WithinTx(ReadOnly(ctx), func(ctx context.Context) error {
		tx, err := MustTxFromContext(ctx)
		if err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
			WITH pt AS (
				SELECT ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography AS g
			)
			SELECT id, name, kind, distance FROM (
				SELECT z.id, z.name, 'zone' AS kind, ST_Distance(z.boundary::geography, pt.g) AS distance
				FROM zones z, pt
				WHERE z.organization_id = $4 AND z.is_active = true
				  AND ST_DWithin(z.boundary::geography, pt.g, $3)
				UNION ALL
				SELECT p.id, p.name, 'park' AS kind, ST_Distance(p.boundary::geography, pt.g) AS distance
				FROM parks p, pt
				WHERE p.organization_id = $4 AND p.is_active = true
				  AND ST_DWithin(p.boundary::geography, pt.g, $3)
			) nearby
			ORDER BY distance, id
		`, lon, lat, radiusMeters, orgID)
		if err != nil {
			return fmt.Errorf("query regions within radius: %w", err)
		}

		regions, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (ports.NearbyRegion, error) {
			var (
				r    ports.NearbyRegion
				kind string
			)
			err := row.Scan(&r.ID, &r.Name, &kind, &r.DistanceMeters)
			r.Kind = geofence.RegionKind(kind)
			return r, err
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return regions, nil
}
