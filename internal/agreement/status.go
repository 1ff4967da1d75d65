package agreement

import "time"

// IsExpired reports whether a is past its expiry while still open. Completed and
// voided agreements never expire.
func IsExpired(a *Agreement, now time.Time) bool {
	if a.Status.IsTerminal() {
		return false
	}
	return a.ExpiresAt.Before(now)
}

// EffectiveStatus overlays time-based expiry on the stored status. It is
// computed at every read and never written back.
func EffectiveStatus(a *Agreement, now time.Time) Status {
	if IsExpired(a, now) {
		return StatusExpired
	}
	return a.Status
}

// EffectiveStatuses lists every value EffectiveStatus can return, in display order.
func EffectiveStatuses() []Status {
	return []Status{StatusSent, StatusPartiallySigned, StatusCompleted, StatusExpired, StatusVoided}
}

// ParseStatus accepts any effective status name; the empty string means "all".
func ParseStatus(s string) (Status, bool) {
	if s == "" {
		return "", true
	}
	for _, st := range EffectiveStatuses() {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func aggregateStatus(signers []Signer) Status {
	signed := 0
	for _, s := range signers {
		if s.Status == SignerSigned {
			signed++
		}
	}
	switch {
	case len(signers) > 0 && signed == len(signers):
		return StatusCompleted
	case signed > 0:
		return StatusPartiallySigned
	default:
		return StatusSent
	}
}
