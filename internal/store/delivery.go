package store

// AlertDelivery is one queued alert webhook delivery attempt.
type AlertDelivery struct {
	ID             string
	CompanyID      string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}
