// Package queue defines the mail messages exchanged over RabbitMQ and the
// consumer that delivers them.
package queue

const (
	// PasswordResetQueue is the durable queue carrying reset mails.
	PasswordResetQueue = "mail.password_reset"
	// PasswordResetRequestedType is the AMQP message type of reset mails.
	PasswordResetRequestedType = "password.reset.requested"
)

// PasswordResetRequested is published when a reset token is issued for an
// existing account.  It carries everything the mailer needs so the consumer
// never queries the database.
type PasswordResetRequested struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Token       string `json:"token"`
	ExpiresAt   string `json:"expiresAt"`
	RequestedAt string `json:"requestedAt"`
}
