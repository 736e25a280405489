package topics

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_SeedTopics(t *testing.T) {
	table := NewTable(DefaultSeed())

	for _, entry := range DefaultSeed() {
		for _, topic := range entry.Topics {
			t.Run(topic, func(t *testing.T) {
				assert.Equal(t, entry.Emotion, table.Lookup(topic))
			})
		}
	}
}

func TestLookup_Unknown(t *testing.T) {
	table := NewTable(DefaultSeed())

	tests := []string{"robots", "", "indifference", "happiness", "Food"}
	for _, topic := range tests {
		t.Run(topic, func(t *testing.T) {
			assert.Equal(t, Indifference, table.Lookup(topic))
		})
	}
}

func TestRecord(t *testing.T) {
	tests := []struct {
		name    string
		emotion Emotion
		topic   string
		want    bool
	}{
		{"new topic under known emotion", "happiness", "music", true},
		{"indifference never records", Indifference, "music", false},
		{"unknown emotion", "boredom", "music", false},
		{"already present under same emotion", "happiness", "food", false},
		{"owned by another emotion", "sadness", "food", false},
		{"empty topic", "happiness", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := NewTable(DefaultSeed())
			before := table.Entries()

			got := table.Record(tt.emotion, tt.topic)
			assert.Equal(t, tt.want, got)

			if !tt.want {
				if diff := cmp.Diff(before, table.Entries()); diff != "" {
					t.Errorf("Record() mutated table (-before +after):\n%s", diff)
				}
				return
			}
			assert.Equal(t, tt.emotion, table.Lookup(tt.topic))
		})
	}
}

func TestRecord_Idempotent(t *testing.T) {
	once := NewTable(DefaultSeed())
	twice := NewTable(DefaultSeed())

	require.True(t, once.Record("fear", "spiders"))
	require.True(t, twice.Record("fear", "spiders"))
	require.False(t, twice.Record("fear", "spiders"))

	if diff := cmp.Diff(once.Entries(), twice.Entries()); diff != "" {
		t.Errorf("Record() twice differs from once (-once +twice):\n%s", diff)
	}
}

func TestRecord_IndifferenceAnything(t *testing.T) {
	table := NewTable(DefaultSeed())
	before := table.Entries()

	for _, topic := range []string{"love", "robots", "", "indifference"} {
		assert.False(t, table.Record(Indifference, topic))
	}
	assert.Empty(t, cmp.Diff(before, table.Entries()))
}

func TestNewTable_SkipsDuplicatesAndIndifference(t *testing.T) {
	table := NewTable([]Entry{
		{Emotion: "happiness", Topics: []string{"food", "", "food"}},
		{Emotion: Indifference, Topics: []string{"robots"}},
		{Emotion: "disgust", Topics: []string{"food", "rotten"}},
	})

	want := []Entry{
		{Emotion: "happiness", Topics: []string{"food"}},
		{Emotion: "disgust", Topics: []string{"rotten"}},
	}
	if diff := cmp.Diff(want, table.Entries()); diff != "" {
		t.Errorf("NewTable() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Indifference, table.Lookup("robots"))
}

func TestMerge(t *testing.T) {
	table := NewTable(DefaultSeed())

	added := table.Merge([]Entry{
		{Emotion: "happiness", Topics: []string{"love", "music"}},
		{Emotion: "awe", Topics: []string{"stars"}},
		{Emotion: "sadness", Topics: []string{"war"}},
	})

	assert.Equal(t, 2, added)
	assert.Equal(t, Emotion("happiness"), table.Lookup("music"))
	assert.Equal(t, Emotion("awe"), table.Lookup("stars"))
	assert.Equal(t, Emotion("anger"), table.Lookup("war"))
	assert.True(t, table.Has("awe"))
}

func TestTopics_Order(t *testing.T) {
	table := NewTable([]Entry{
		{Emotion: "happiness", Topics: []string{"love", "peace"}},
		{Emotion: "sadness", Topics: []string{"loss"}},
	})
	require.True(t, table.Record("happiness", "food"))

	assert.Equal(t, []string{"love", "peace", "food", "loss"}, table.Topics())
	assert.Equal(t, []Emotion{"happiness", "sadness"}, table.Emotions())
}

func TestEntries_ReturnsCopy(t *testing.T) {
	table := NewTable(DefaultSeed())

	entries := table.Entries()
	entries[0].Topics[0] = "mutated"

	assert.Equal(t, Emotion("happiness"), table.Lookup("love"))
	assert.Equal(t, Indifference, table.Lookup("mutated"))
}

func TestRecord_Concurrent(t *testing.T) {
	table := NewTable(DefaultSeed())

	var wg sync.WaitGroup
	results := make(chan bool, 50)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- table.Record("surprise", "party")
		}()
	}
	wg.Wait()
	close(results)

	recorded := 0
	for ok := range results {
		if ok {
			recorded++
		}
	}
	assert.Equal(t, 1, recorded)
	assert.Equal(t, []string{"gift", "party"}, table.Entries()[4].Topics)
}
