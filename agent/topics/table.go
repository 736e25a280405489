// Package topics holds the table linking emotion labels to the topics that evoke them.
package topics

import (
	"slices"
	"sync"
)

// Emotion is a label the model is asked to embody when replying.
type Emotion string

// Indifference is returned when no emotion owns a topic. Topics are never
// recorded against it.
const Indifference Emotion = "indifference"

func (e Emotion) String() string {
	return string(e)
}

// Entry is one emotion and its topics, in table order.
type Entry struct {
	Emotion Emotion  `json:"name" yaml:"name"`
	Topics  []string `json:"topics" yaml:"topics"`
}

// DefaultSeed returns the built-in seed set. Each call returns a fresh copy.
func DefaultSeed() []Entry {
	return []Entry{
		{Emotion: "happiness", Topics: []string{"love", "peace", "food"}},
		{Emotion: "sadness", Topics: []string{"death", "loss"}},
		{Emotion: "anger", Topics: []string{"war", "conflict", "betrayal", "heartbreak"}},
		{Emotion: "fear", Topics: []string{"supernatural", "paranormal", "mystery"}},
		{Emotion: "surprise", Topics: []string{"gift"}},
		{Emotion: "disgust", Topics: []string{"rotten"}},
		{Emotion: "love", Topics: []string{"creator", "family", "electricity"}},
	}
}

// Table maps emotions to topics. A topic belongs to at most one emotion.
// It is safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewTable builds a table from seed. Entries for Indifference, empty topics and
// topics already owned by an earlier entry are skipped.
func NewTable(seed []Entry) *Table {
	t := &Table{}
	t.merge(seed)
	return t
}

// Lookup returns the emotion owning topic, or Indifference when none does.
// Matching is exact; callers normalise case before looking up.
func (t *Table) Lookup(topic string) Emotion {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lookup(topic)
}

func (t *Table) lookup(topic string) Emotion {
	for _, e := range t.entries {
		if slices.Contains(e.Topics, topic) {
			return e.Emotion
		}
	}
	return Indifference
}

// Record appends topic under emotion and reports whether the table changed.
// Unknown emotions, Indifference, empty topics and topics already owned by any
// emotion leave the table untouched, so repeated calls are no-ops.
func (t *Table) Record(emotion Emotion, topic string) bool {
	if emotion == Indifference || topic == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.index(emotion)
	if i < 0 {
		return false
	}
	if t.lookup(topic) != Indifference {
		return false
	}
	t.entries[i].Topics = append(t.entries[i].Topics, topic)
	return true
}

// Merge adds emotions and topics from seed that the table does not know yet and
// returns how many topics were added. Nothing is ever removed.
func (t *Table) Merge(seed []Entry) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.merge(seed)
}

func (t *Table) merge(seed []Entry) int {
	added := 0
	for _, s := range seed {
		if s.Emotion == "" || s.Emotion == Indifference {
			continue
		}
		i := t.index(s.Emotion)
		if i < 0 {
			t.entries = append(t.entries, Entry{Emotion: s.Emotion})
			i = len(t.entries) - 1
		}
		for _, topic := range s.Topics {
			if topic == "" || t.lookup(topic) != Indifference {
				continue
			}
			t.entries[i].Topics = append(t.entries[i].Topics, topic)
			added++
		}
	}
	return added
}

func (t *Table) index(emotion Emotion) int {
	return slices.IndexFunc(t.entries, func(e Entry) bool {
		return e.Emotion == emotion
	})
}

// Has reports whether emotion is a key of the table.
func (t *Table) Has(emotion Emotion) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.index(emotion) >= 0
}

// Topics returns every topic in table order.
func (t *Table) Topics() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var all []string
	for _, e := range t.entries {
		all = append(all, e.Topics...)
	}
	return all
}

// Emotions returns the table keys in order.
func (t *Table) Emotions() []Emotion {
	t.mu.RLock()
	defer t.mu.RUnlock()

	emotions := make([]Emotion, 0, len(t.entries))
	for _, e := range t.entries {
		emotions = append(emotions, e.Emotion)
	}
	return emotions
}

// Entries returns a deep copy of the table.
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, Entry{Emotion: e.Emotion, Topics: slices.Clone(e.Topics)})
	}
	return entries
}
