package service

import (
	"context"
	"fmt"
	"time"

	"geofence-events/internal/domain/geofence"
	"geofence-events/internal/ports"

	"github.com/google/uuid"
)

// ProcessPosition diffs the vehicle's containment against its previous state and emits
// the resulting events. Only validation failures are returned; geometry failures leave
// the state untouched and yield no events.
func (service *tracker) ProcessPosition(ctx context.Context, position geofence.Position) ([]geofence.Event, error) {
	if err := position.Validate(); err != nil {
		return nil, err
	}
	if position.Timestamp.IsZero() {
		position.Timestamp = service.opts.Now().UTC()
	}

	ctx = service.logger.WithVehicleID(ctx, position.VehicleID)
	ctx = service.logger.WithOrganizationID(ctx, position.OrganizationID)

	// same-vehicle positions are serialized; emission stays under the lock so
	// listeners observe one vehicle's events in order
	unlock := service.locks.Lock(position.VehicleID)
	defer unlock()

	zones, parks, err := service.lookup(ctx, position)
	if err != nil {
		service.logger.Error(ctx, "geometry_lookup_failed", "containment query failed, membership unchanged", err, map[string]any{
			"longitude": position.Longitude,
			"latitude":  position.Latitude,
		})
		return nil, nil
	}

	prev, ok := service.store.Get(position.VehicleID)
	if !ok {
		prev = geofence.NewMembershipState(position.VehicleID, position.OrganizationID)
	}

	next := geofence.NewMembershipState(position.VehicleID, position.OrganizationID)
	next.ZoneIDs = zones
	next.ParkIDs = parks
	next.LastUpdate = position.Timestamp

	var events []geofence.Event
	events = append(events, service.diff(prev, next, position, geofence.RegionZone)...)
	events = append(events, service.diff(prev, next, position, geofence.RegionPark)...)

	service.store.Put(next)

	for _, event := range events {
		service.persist(ctx, event)
		service.notify(ctx, event)
	}

	if len(events) > 0 {
		service.logger.Debug(ctx, "position_processed", "membership changed", map[string]any{
			"events": len(events),
			"zones":  next.ZoneIDs.Sorted(),
			"parks":  next.ParkIDs.Sorted(),
		})
	}

	return events, nil
}

// ProcessBatch runs positions strictly in order. Invalid items are logged and skipped.
func (service *tracker) ProcessBatch(ctx context.Context, positions []geofence.Position) []geofence.Event {
	var all []geofence.Event
	for i, position := range positions {
		events, err := service.ProcessPosition(ctx, position)
		if err != nil {
			service.logger.Warn(ctx, "position_skipped", "invalid position in batch", err, map[string]any{
				"index":      i,
				"vehicle_id": position.VehicleID,
			})
			continue
		}
		all = append(all, events...)
	}
	return all
}

// lookup queries zones and parks under one time box. Any failure fails the whole lookup
// so a half-answered query never drives a diff.
func (service *tracker) lookup(ctx context.Context, position geofence.Position) (zones, parks geofence.Set, err error) {
	if service.oracle == nil {
		return nil, nil, fmt.Errorf("geometry oracle not configured")
	}

	qctx, cancel := context.WithTimeout(ctx, service.opts.OracleTimeout)
	defer cancel()

	zs, err := service.oracle.ContainingZones(qctx, position.Longitude, position.Latitude, position.OrganizationID)
	if err != nil {
		return nil, nil, fmt.Errorf("containing zones: %w", err)
	}
	ps, err := service.oracle.ContainingParks(qctx, position.Longitude, position.Latitude, position.OrganizationID)
	if err != nil {
		return nil, nil, fmt.Errorf("containing parks: %w", err)
	}

	zones = geofence.NewSet()
	for _, z := range zs {
		if z.ID != "" {
			zones[z.ID] = struct{}{}
		}
	}
	parks = geofence.NewSet()
	for _, p := range ps {
		if p.ID != "" {
			parks[p.ID] = struct{}{}
		}
	}
	return zones, parks, nil
}

// diff computes ENTER then EXIT events for one region kind from the old state, and
// carries entry times into next.
func (service *tracker) diff(prev, next *geofence.MembershipState, position geofence.Position, kind geofence.RegionKind) []geofence.Event {
	before, after := prev.ZoneIDs, next.ZoneIDs
	if kind == geofence.RegionPark {
		before, after = prev.ParkIDs, next.ParkIDs
	}

	entered := after.Minus(before)
	exited := before.Minus(after)

	for id := range after {
		key := geofence.EntryKey(kind, id)
		if at, ok := prev.EnteredAt[key]; ok && before.Has(id) {
			next.EnteredAt[key] = at
		}
	}

	events := make([]geofence.Event, 0, len(entered)+len(exited))
	for _, id := range entered {
		next.EnteredAt[geofence.EntryKey(kind, id)] = position.Timestamp
		events = append(events, newEvent(position, kind, id, geofence.EventEnter, nil))
	}
	for _, id := range exited {
		var dwell *float64
		if at, ok := prev.EnteredAt[geofence.EntryKey(kind, id)]; ok && !position.Timestamp.Before(at) {
			secs := position.Timestamp.Sub(at).Seconds()
			dwell = &secs
		}
		events = append(events, newEvent(position, kind, id, geofence.EventExit, dwell))
	}
	return events
}

func newEvent(position geofence.Position, kind geofence.RegionKind, regionID string, eventType geofence.EventType, dwell *float64) geofence.Event {
	event := geofence.Event{
		ID:             uuid.NewString(),
		VehicleID:      position.VehicleID,
		Type:           eventType,
		Timestamp:      position.Timestamp,
		Coordinates:    position.Coordinates(),
		OrganizationID: position.OrganizationID,
		Context: geofence.EventContext{
			SpeedKmh:       position.SpeedKmh,
			HeadingDegrees: position.HeadingDegrees,
			DwellSeconds:   dwell,
		},
	}
	if kind == geofence.RegionZone {
		event.ZoneID = regionID
	} else {
		event.ParkID = regionID
	}
	return event
}

func (service *tracker) persist(ctx context.Context, event geofence.Event) {
	if service.events == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, service.opts.StoreTimeout)
	defer cancel()

	if err := service.events.Save(sctx, event); err != nil {
		service.logger.Error(ctx, "event_persist_failed", "failed to persist geofence event", err, eventDetails(event))
	}
}

// notify calls every listener in registration order, each inside its own failure boundary.
func (service *tracker) notify(ctx context.Context, event geofence.Event) {
	for i, listener := range service.snapshotListeners() {
		if err := callListener(ctx, listener, event); err != nil {
			details := eventDetails(event)
			details["listener"] = i
			service.logger.Error(ctx, "listener_failed", "event listener failed", err, details)
		}
	}
}

func callListener(ctx context.Context, listener ports.EventListener, event geofence.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return listener.OnEvent(ctx, event)
}

func eventDetails(event geofence.Event) map[string]any {
	return map[string]any{
		"event_id":   event.ID,
		"event_type": event.Type,
		"region_id":  event.RegionID(),
		"timestamp":  event.Timestamp.Format(time.RFC3339),
	}
}
