package transport

import (
	"sync"
	"time"
)

// Mailbox is the single-slot hand-off between a transport's I/O goroutine
// and the dispatcher loop. The I/O side posts a request and awaits the
// reply; the dispatcher takes the request and replies.
//
// At most one request is pending: a newer Post replaces an unconsumed one.
// Every Post gets a sequence number and a reply carries the number of the
// request it answers, so a reply that arrives after its request timed out
// is never delivered to a later one.
type Mailbox struct {
	mu      sync.Mutex
	pending string
	has     bool
	seq     uint64 // last posted
	pendSeq uint64 // of pending
	taken   uint64 // of the request the dispatcher is answering
	replies chan reply
}

type reply struct {
	seq  uint64
	text string
}

func NewMailbox() *Mailbox {
	return &Mailbox{replies: make(chan reply, 1)}
}

// Post stores req as the pending request, discards any stale reply and
// returns the sequence number to await.
func (m *Mailbox) Post(req string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.replies:
	default:
	}
	m.seq++
	m.pending = req
	m.pendSeq = m.seq
	m.has = true
	return m.seq
}

// Take returns the pending request and clears the slot, or "" if empty.
func (m *Mailbox) Take() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.has {
		return ""
	}
	req := m.pending
	m.pending = ""
	m.has = false
	m.taken = m.pendSeq
	return req
}

// Reply answers the request last taken. An unread older reply is
// overwritten.
func (m *Mailbox) Reply(resp string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.replies:
	default:
	}
	m.replies <- reply{seq: m.taken, text: resp}
}

// Await blocks until the reply to request seq arrives, stop is closed, or
// timeout elapses. Replies to other requests are dropped.
func (m *Mailbox) Await(seq uint64, stop <-chan struct{}, timeout time.Duration) (string, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	for {
		select {
		case r := <-m.replies:
			if r.seq == seq {
				return r.text, true
			}
		case <-stop:
			// A reply that raced the stop is still delivered.
			select {
			case r := <-m.replies:
				if r.seq == seq {
					return r.text, true
				}
			default:
			}
			return "", false
		case <-t.C:
			return "", false
		}
	}
}
