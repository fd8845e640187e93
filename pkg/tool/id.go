package tool

import "github.com/google/uuid"

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GenerateIdempotencyKey returns a provider idempotency key scoped by prefix.
func GenerateIdempotencyKey(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
