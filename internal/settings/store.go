// Package settings persists the agent's small durable key/value state: the
// device id and the last resolved user id.
package settings

import "context"

const (
	KeyDeviceID = "deviceId"
	KeyUserID   = "userId"
)

// Store is a durable string key/value store. Values never expire.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}
