package app

import (
	"sync"

	"learnloop-service/internal/domain"
)

// StatsUpdate is a statistics snapshot for one quiz.
type StatsUpdate struct {
	QuizID string           `json:"quizId"`
	Stats  domain.QuizStats `json:"stats"`
}

// StatsHub fans quiz statistics out to live subscribers.
type StatsHub struct {
	mu     sync.Mutex
	topics map[string]*statsTopic
}

type statsTopic struct {
	last        domain.QuizStats
	subscribers map[chan StatsUpdate]struct{}
}

func NewStatsHub() *StatsHub {
	return &StatsHub{topics: make(map[string]*statsTopic)}
}

// Subscribe registers for updates on quizID. The channel first receives
// initial, or the most recent broadcast if one is newer. The caller must
// invoke cancel to release the subscription.
func (h *StatsHub) Subscribe(quizID string, initial domain.QuizStats) (<-chan StatsUpdate, func()) {
	ch := make(chan StatsUpdate, 8)

	h.mu.Lock()
	topic, ok := h.topics[quizID]
	if !ok {
		topic = &statsTopic{last: initial, subscribers: make(map[chan StatsUpdate]struct{})}
		h.topics[quizID] = topic
	} else if initial.TotalAttempts > topic.last.TotalAttempts {
		topic.last = initial
	}
	topic.subscribers[ch] = struct{}{}
	ch <- StatsUpdate{QuizID: quizID, Stats: topic.last}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if t, ok := h.topics[quizID]; ok {
				if _, ok := t.subscribers[ch]; ok {
					delete(t.subscribers, ch)
					close(ch)
				}
				if len(t.subscribers) == 0 {
					delete(h.topics, quizID)
				}
			}
		})
	}
	return ch, cancel
}

// Broadcast pushes stats to every subscriber of quizID. Stale updates are
// dropped for subscribers that fall behind.
func (h *StatsHub) Broadcast(quizID string, stats domain.QuizStats) {
	h.mu.Lock()
	defer h.mu.Unlock()

	topic, ok := h.topics[quizID]
	if !ok {
		return
	}
	if stats.TotalAttempts < topic.last.TotalAttempts {
		return
	}
	topic.last = stats
	update := StatsUpdate{QuizID: quizID, Stats: stats}
	for ch := range topic.subscribers {
		select {
		case ch <- update:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}

// Close ends every subscription on quizID, e.g. when the quiz is deleted.
func (h *StatsHub) Close(quizID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	topic, ok := h.topics[quizID]
	if !ok {
		return
	}
	for ch := range topic.subscribers {
		close(ch)
	}
	delete(h.topics, quizID)
}

// Subscribers reports how many live subscriptions quizID has.
func (h *StatsHub) Subscribers(quizID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if topic, ok := h.topics[quizID]; ok {
		return len(topic.subscribers)
	}
	return 0
}
