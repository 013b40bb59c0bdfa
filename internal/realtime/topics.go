package realtime

// Topic constants for state changes pushed to session subscribers.
const (
	TopicSessionCreated    = "session.created"
	TopicParticipantJoined = "participant.joined"
	TopicSplitComputed     = "split.computed"
	TopicPaymentPending    = "payment.pending"
	TopicPaymentPaid       = "payment.paid"
	TopicPaymentFailed     = "payment.failed"
	TopicPaymentCanceled   = "payment.canceled"
	TopicSessionCompleted  = "session.completed"
	TopicSessionCancelled  = "session.cancelled"
)

// DefaultTopics returns the canonical list of topics a subscriber can
// expect on a session channel.
func DefaultTopics() []string {
	return []string{
		TopicSessionCreated,
		TopicParticipantJoined,
		TopicSplitComputed,
		TopicPaymentPending,
		TopicPaymentPaid,
		TopicPaymentFailed,
		TopicPaymentCanceled,
		TopicSessionCompleted,
		TopicSessionCancelled,
	}
}
