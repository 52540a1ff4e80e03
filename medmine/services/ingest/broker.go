package ingest

import (
	"sync"

	"medmine/medmine/utils/types"
)

// Broker fans batch status changes out to watchers. Each subscription
// keeps only the newest status it has not read yet.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan types.BatchStatus]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan types.BatchStatus]struct{})}
}

// Subscribe returns a channel of status updates for batchID and a cancel
// func that must be called once the caller stops reading.
func (b *Broker) Subscribe(batchID string) (<-chan types.BatchStatus, func()) {
	ch := make(chan types.BatchStatus, 1)
	b.mu.Lock()
	if b.subs[batchID] == nil {
		b.subs[batchID] = make(map[chan types.BatchStatus]struct{})
	}
	b.subs[batchID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[batchID], ch)
			if len(b.subs[batchID]) == 0 {
				delete(b.subs, batchID)
			}
			b.mu.Unlock()
		})
	}
}

func (b *Broker) Publish(st types.BatchStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[st.BatchID] {
		select {
		case ch <- st:
		default:
			// replace the unread status with the newer one
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
}
