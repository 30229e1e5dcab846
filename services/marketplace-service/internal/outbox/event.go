package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types published by the marketplace service.
const (
	EventSessionBooked        = "marketplace.session.booked.v1"
	EventSessionStatusChanged = "marketplace.session.status_changed.v1"
)
