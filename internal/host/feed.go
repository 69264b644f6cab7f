package host

import (
	"github.com/google/logger"

	"poolwager/internal/models"
)

// Subscribe returns a channel receiving every receipt from now on, and a
// function that unsubscribes and closes it. A subscriber that falls more
// than buffer receipts behind misses receipts rather than stalling the host.
func (h *Host) Subscribe(buffer int) (<-chan models.Receipt, func()) {
	ch := make(chan models.Receipt, buffer)

	h.subsMu.Lock()
	h.subs[ch] = struct{}{}
	h.subsMu.Unlock()

	var cancelled bool
	return ch, func() {
		h.subsMu.Lock()
		defer h.subsMu.Unlock()
		if cancelled {
			return
		}
		cancelled = true
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *Host) publish(r models.Receipt) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- r:
		default:
			logger.Warningf("Dropping receipt %s for a slow subscriber", r.TxID)
		}
	}
}
