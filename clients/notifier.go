package clients

// Notifier delivers an invite message. Delivery is out of scope for the
// lifecycle itself; the engine only records the outcome.
type Notifier interface {
	Send(addresses []string, subject, content string) (int, string)
}
