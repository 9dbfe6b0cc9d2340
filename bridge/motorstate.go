package bridge

// MotorStateTracker decides when the motors-enabled flag has to be announced. The zero value is
// "disabled, never announced", so the first observation is always announced.
type MotorStateTracker struct {
	lastAnnounced bool
	hasAnnounced  bool
}

// Observe takes the live motor state and reports whether it must be announced, and with what
// value. An announcement is due when the state changed or nothing was announced yet.
func (t *MotorStateTracker) Observe(live bool) (announce, value bool) {
	if live == t.lastAnnounced && t.hasAnnounced {
		return false, t.lastAnnounced
	}
	t.lastAnnounced = live
	t.hasAnnounced = true
	return true, live
}

// LastAnnounced returns the last announced value and whether there was one.
func (t *MotorStateTracker) LastAnnounced() (value, ok bool) {
	return t.lastAnnounced, t.hasAnnounced
}
