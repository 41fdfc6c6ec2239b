package safe

import (
	"bizlink/logger"
)

// Go starts a goroutine that recovers from panic, so a misbehaving
// best-effort side job cannot take the gateway down.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
