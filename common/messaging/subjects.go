package messaging

// Subjects and streams on the lead pipeline message bus.
// Follow the pattern: {domain}.{resource}
const (
	SubjectLeadDelivery = "leads.delivery" // delivery jobs, one per submission
	StreamLeadDelivery  = "LEAD_DELIVERY"
	ConsumerDispatcher  = "lead-dispatcher"
)

// HeaderJobKey carries the admission key of a delivery job.
const HeaderJobKey = "Lead-Job-Key"
