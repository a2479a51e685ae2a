package shared

import "time"

// AnonymousUserKey is the storage key holding the persisted anonymous id.
const AnonymousUserKey = "bugshot_anonymous_user_id"

// Locations of a captured error that ignore rules can match against.
const (
	TypeStr    = "type"
	MessageStr = "message"
	FileStr    = "file"
	StackStr   = "stackTrace"
)

const (
	DefaultMaxReplayEvents = 1000
	DefaultRetryDelay      = 5 * time.Second
	ReplayTextLimit        = 100
	RetryQueueSize         = 10
	MaxDeliveryAttempts    = 3
	BeaconLimit            = 64 << 10
)

const RedactedPrefix = "redacted:"
