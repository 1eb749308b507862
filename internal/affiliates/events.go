package affiliates

import "time"

// ChangeAction names the mutation that produced a ChangeEvent.
type ChangeAction string

const (
	ChangeCreated   ChangeAction = "created"
	ChangeApproved  ChangeAction = "approved"
	ChangeSuspended ChangeAction = "suspended"
	ChangePatched   ChangeAction = "patched"
	ChangeDeleted   ChangeAction = "deleted"
)

// ChangeEvent is broadcast on the affiliate stream after a successful mutation.
type ChangeEvent struct {
	Action       ChangeAction `json:"action"`
	AffiliateIDs []string     `json:"affiliateIds"`
	Status       Status       `json:"status,omitempty"`
	ActorID      string       `json:"actorId,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
	Source       string       `json:"source"`
}
