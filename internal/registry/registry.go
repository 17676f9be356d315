package registry

import (
	"errors"
	"fmt"
	"sync"
)

// Registry is the single source of truth for in-flight call identity.
//
// Invariant: a UUID denotes at most one of {Invite, held CancelledInvite,
// Call} at any instant. The orchestrator is the only writer; everything else
// gets copies.
//
// The registry also keeps a CallSid -> UUID index because push cancellations
// and signaling callbacks are keyed by the signaling-assigned SID, not by the
// locally minted UUID.

var (
	ErrDuplicateID = errors.New("registry: identifier already present")
	ErrNotFound    = errors.New("registry: no record for identifier")
)

type Registry struct {
	mu sync.Mutex

	invites   map[string]*Invite          // uuid -> invite
	held      map[string]*CancelledInvite // callSid -> cancellation waiting for its invite
	calls     map[string]*Call            // uuid -> call
	sidToUUID map[string]string           // callSid -> uuid (invites and calls)
}

func New() *Registry {
	return &Registry{
		invites:   make(map[string]*Invite),
		held:      make(map[string]*CancelledInvite),
		calls:     make(map[string]*Call),
		sidToUUID: make(map[string]string),
	}
}

// AddInvite records a new pending invite.
func (r *Registry) AddInvite(inv Invite) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.occupied(inv.UUID) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, inv.UUID)
	}
	if _, ok := r.sidToUUID[inv.CallSid]; ok {
		return fmt.Errorf("%w: call sid %s", ErrDuplicateID, inv.CallSid)
	}

	cp := inv
	r.invites[inv.UUID] = &cp
	r.sidToUUID[inv.CallSid] = inv.UUID
	return nil
}

// Invite returns a copy of the pending invite for uuid.
func (r *Registry) Invite(uuid string) (Invite, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invites[uuid]
	if !ok {
		return Invite{}, false
	}
	return *inv, true
}

// UUIDForSid resolves a signaling SID to a local identifier.
func (r *Registry) UUIDForSid(callSid string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	uuid, ok := r.sidToUUID[callSid]
	return uuid, ok
}

// RemoveInvite deletes a pending invite and returns it.
func (r *Registry) RemoveInvite(uuid string) (Invite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invites[uuid]
	if !ok {
		return Invite{}, fmt.Errorf("%w: invite %s", ErrNotFound, uuid)
	}
	delete(r.invites, uuid)
	delete(r.sidToUUID, inv.CallSid)
	return *inv, nil
}

// PromoteInvite atomically replaces a pending invite with a live call.
//
// If the invite has already been removed (a concurrent cancellation won the
// race) the promotion fails with ErrNotFound and the registry is unchanged;
// the caller must treat the accept as aborted.
func (r *Registry) PromoteInvite(uuid string, call Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invites[uuid]
	if !ok {
		return fmt.Errorf("%w: invite %s", ErrNotFound, uuid)
	}
	if _, exists := r.calls[uuid]; exists {
		// Double promotion is a programming error, not a race we absorb.
		panic(fmt.Sprintf("registry: %s already denotes a call", uuid))
	}

	delete(r.invites, uuid)
	cp := call
	r.calls[uuid] = &cp
	r.sidToUUID[inv.CallSid] = uuid
	if call.Sid != "" && call.Sid != inv.CallSid {
		r.sidToUUID[call.Sid] = uuid
	}
	return nil
}

// AddCall records an outgoing call minted directly (no invite phase).
func (r *Registry) AddCall(call Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.occupied(call.UUID) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, call.UUID)
	}
	cp := call
	r.calls[call.UUID] = &cp
	if call.Sid != "" {
		r.sidToUUID[call.Sid] = call.UUID
	}
	return nil
}

// Call returns a copy of the live call for uuid.
func (r *Registry) Call(uuid string) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[uuid]
	if !ok {
		return Call{}, false
	}
	return *c, true
}

// UpdateCall applies fn to the live call under the registry lock and returns
// the updated copy.
func (r *Registry) UpdateCall(uuid string, fn func(*Call)) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[uuid]
	if !ok {
		return Call{}, fmt.Errorf("%w: call %s", ErrNotFound, uuid)
	}
	fn(c)
	if c.Sid != "" {
		r.sidToUUID[c.Sid] = uuid
	}
	return *c, nil
}

// RemoveCall deletes a live call and returns its final snapshot. The second
// of two concurrent teardown triggers observes ErrNotFound and must stop.
func (r *Registry) RemoveCall(uuid string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[uuid]
	if !ok {
		return Call{}, fmt.Errorf("%w: call %s", ErrNotFound, uuid)
	}
	delete(r.calls, uuid)
	if c.Sid != "" {
		delete(r.sidToUUID, c.Sid)
	}
	// The invite-era SID may differ from the call SID; sweep it too.
	for sid, id := range r.sidToUUID {
		if id == uuid {
			delete(r.sidToUUID, sid)
		}
	}
	return *c, nil
}

// HoldCancellation parks a cancellation that arrived before its invite.
func (r *Registry) HoldCancellation(c CancelledInvite) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := c
	r.held[c.CallSid] = &cp
}

// ParkCancellation parks c unless its call SID is already registered, in
// which case the owning UUID is returned and nothing is parked. The lookup
// and the park are a single atomic step.
func (r *Registry) ParkCancellation(c CancelledInvite) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if uuid, ok := r.sidToUUID[c.CallSid]; ok {
		return uuid, false
	}
	cp := c
	r.held[c.CallSid] = &cp
	return "", true
}

// TakeHeldCancellation removes and returns the parked cancellation for a
// call SID, if any.
func (r *Registry) TakeHeldCancellation(callSid string) (CancelledInvite, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.held[callSid]
	if !ok {
		return CancelledInvite{}, false
	}
	delete(r.held, callSid)
	return *c, true
}

// Invites returns a snapshot of all pending invites.
func (r *Registry) Invites() []Invite {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Invite, 0, len(r.invites))
	for _, inv := range r.invites {
		out = append(out, *inv)
	}
	return out
}

// Calls returns a snapshot of all live calls.
func (r *Registry) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Call, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, *c)
	}
	return out
}

func (r *Registry) occupied(uuid string) bool {
	if _, ok := r.invites[uuid]; ok {
		return true
	}
	if _, ok := r.calls[uuid]; ok {
		return true
	}
	for _, c := range r.held {
		if c.UUID == uuid {
			return true
		}
	}
	return false
}
