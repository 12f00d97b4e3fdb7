package app

import "github.com/Latasoft/confiaticket-reservations/internal/domain"

// maxVersionRetries bounds how often a service replays an operation that
// lost an optimistic-lock race before surfacing a conflict to the caller.
const maxVersionRetries = 3

// withVersionRetry replays fn while it fails with ErrVersionConflict, up to
// maxVersionRetries attempts, then surfaces ErrConflict.
func withVersionRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		err = fn()
		if err != domain.ErrVersionConflict {
			return err
		}
	}
	return domain.ErrConflict
}
