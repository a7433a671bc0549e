package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortNewestFirst_TieBreaksOnID(t *testing.T) {
	events := []FallEvent{
		{ID: "a", Timestamp: 200},
		{ID: "c", Timestamp: 100},
		{ID: "b", Timestamp: 200},
	}

	SortNewestFirst(events)
	assert.Equal(t, []string{"b", "a", "c"}, ids(events))

	SortOldestFirst(events)
	assert.Equal(t, []string{"c", "a", "b"}, ids(events))
}

func ids(events []FallEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}
