package relay

import (
	"sort"
	"sync"
)

// SubscriptionSet tracks the topics the application wants delivered. The set
// is the desired state, independent of connection health: topics added while
// disconnected are announced on the next successful connection, matching the
// pending-subscription behavior of the control plane.
type SubscriptionSet struct {
	mu     sync.RWMutex
	topics map[string]struct{}
}

// NewSubscriptionSet creates an empty set.
func NewSubscriptionSet() *SubscriptionSet {
	return &SubscriptionSet{topics: make(map[string]struct{})}
}

// Add registers a topic. It reports whether the topic was newly added.
func (s *SubscriptionSet) Add(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.topics[topic]; ok {
		return false
	}
	s.topics[topic] = struct{}{}
	return true
}

// Remove drops a topic. It reports whether the topic was present.
func (s *SubscriptionSet) Remove(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.topics[topic]; !ok {
		return false
	}
	delete(s.topics, topic)
	return true
}

// Contains reports whether topic is in the set.
func (s *SubscriptionSet) Contains(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.topics[topic]
	return ok
}

// List returns the topics in sorted order.
func (s *SubscriptionSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, 0, len(s.topics))
	for t := range s.topics {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Len returns the number of subscribed topics.
func (s *SubscriptionSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.topics)
}
