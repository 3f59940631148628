package buildorder

import "strings"

// PendingClaim says the next matching object created for PID within
// [Frame, Expiry] is explained by an earlier command.
type PendingClaim struct {
	TypeName string
	PID      int
	Frame    int64
	Expiry   int64
}

// claimQueue holds pending claims in registration order.
type claimQueue struct {
	window  int64
	pending []PendingClaim
}

func (q *claimQueue) register(typeName string, pid int, frame int64) {
	q.pending = append(q.pending, PendingClaim{
		TypeName: typeName,
		PID:      pid,
		Frame:    frame,
		Expiry:   frame + q.window,
	})
}

// consume removes the first live claim matching the object, purging every
// claim that expired before frame along the way.
func (q *claimQueue) consume(typeName string, pid int, frame int64) bool {
	kept := q.pending[:0]
	found := false
	for _, c := range q.pending {
		if frame > c.Expiry {
			continue
		}
		if !found && c.PID == pid && strings.EqualFold(c.TypeName, typeName) && frame >= c.Frame {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	q.pending = kept
	return found
}

func (q *claimQueue) len() int { return len(q.pending) }

// IllusionResolver matches illusion casts to the decoy objects they create.
type IllusionResolver struct {
	claims claimQueue
}

// NewIllusionResolver creates a resolver whose claims live window frames.
func NewIllusionResolver(window int64) *IllusionResolver {
	return &IllusionResolver{claims: claimQueue{window: window}}
}

// Register records an illusion cast for typeName at the trigger frame.
func (r *IllusionResolver) Register(typeName string, pid int, triggerFrame int64) {
	r.claims.register(typeName, pid, triggerFrame)
}

// TryConsume reports whether a creation of typeName at frame is a decoy
// explained by a registered cast, removing the claim if so.
func (r *IllusionResolver) TryConsume(typeName string, pid int, frame int64) bool {
	return r.claims.consume(typeName, pid, frame)
}

// Pending returns the number of unexpired, unconsumed claims last seen.
func (r *IllusionResolver) Pending() int {
	return r.claims.len()
}
