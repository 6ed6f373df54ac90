package contracts

// Exchanges
const (
	ExchangePositionTopic = "position_topic"
	ExchangeGeofenceTopic = "geofence_topic"
	ExchangeNotifyDirect  = "notify_direct"
)

// Queues
const (
	QueueVehiclePositions = "vehicle_positions" // default; overridable via rabbitmq.position_queue
	QueueNotifyEmail      = "notify_email"
	QueueNotifySMS        = "notify_sms"
)

// Routing patterns
const (
	RoutePositionPrefix      = "position."       // {organization_id}
	RouteGeofenceEventPrefix = "geofence.event." // {enter|exit}.{organization_id}
	RouteNotifyEmail         = "notify.email"
	RouteNotifySMS           = "notify.sms"
)

// Producer is stamped into Envelope.Producer on everything this service publishes.
const Producer = "geofence-service"
