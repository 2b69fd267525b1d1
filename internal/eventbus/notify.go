package eventbus

import "strconv"

// NotificationTopic is the topic the alert engine's Notify action publishes
// to; the UI (out of scope) subscribes and renders these.
const NotificationTopic = "alert_notifications"

// Notification is the payload of a Notify action.
type Notification struct {
	PID     int    `json:"pid"`
	Message string `json:"message"`
}

// PublishNotification is a convenience wrapper around Publish for the
// common case of a per-pid human-readable alert message.
func PublishNotification(bus EventBus, pid int, message string) error {
	return bus.Publish(&Event{
		Topic:   NotificationTopic,
		Key:     strconv.Itoa(pid),
		Payload: Notification{PID: pid, Message: message},
	})
}
