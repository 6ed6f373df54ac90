package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"geofence-events/internal/domain/geofence"
	"geofence-events/internal/general/contracts"
)

var (
	ErrMalformedPosition = errors.New("malformed position message")
	ErrTopicMismatch     = errors.New("vehicle_id does not match topic")
	ErrForeignOrg        = errors.New("position belongs to another organization")
)

// decodePosition parses a PositionMessage body. topicVehicleID, when set, fills a
// missing vehicle_id and must match a present one.
func decodePosition(body []byte, topicVehicleID string) (geofence.Position, error) {
	var msg contracts.PositionMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return geofence.Position{}, fmt.Errorf("%w: %v", ErrMalformedPosition, err)
	}

	if topicVehicleID != "" {
		switch msg.VehicleID {
		case "":
			msg.VehicleID = topicVehicleID
		case topicVehicleID:
		default:
			return geofence.Position{}, fmt.Errorf("%w: %q vs %q", ErrTopicMismatch, msg.VehicleID, topicVehicleID)
		}
	}

	position := msg.ToPosition()
	if err := position.Validate(); err != nil {
		return geofence.Position{}, err
	}
	return position, nil
}

func decodeForOrg(body []byte, orgID string) (geofence.Position, error) {
	position, err := decodePosition(body, "")
	if err != nil {
		return geofence.Position{}, err
	}
	if orgID != "" && position.OrganizationID != orgID {
		return geofence.Position{}, ErrForeignOrg
	}
	return position, nil
}

// decodeBatch accepts either one PositionMessage object or an array of them.
// Invalid items are reported per index and do not stop the batch.
func decodeBatch(body []byte, orgID string) ([]geofence.Position, map[int]error, error) {
	trimmed := firstNonSpace(body)
	if trimmed != '[' {
		position, err := decodeForOrg(body, orgID)
		if err != nil {
			return nil, nil, err
		}
		return []geofence.Position{position}, nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedPosition, err)
	}

	positions := make([]geofence.Position, 0, len(items))
	rejected := map[int]error{}
	for i, item := range items {
		position, err := decodeForOrg(item, orgID)
		if err != nil {
			rejected[i] = err
			continue
		}
		positions = append(positions, position)
	}
	return positions, rejected, nil
}

func firstNonSpace(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return c
	}
	return 0
}
