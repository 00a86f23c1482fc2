package agenda

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agendad/internal/model"
)

func savedWithDate(title, dateText string) model.SavedEvent {
	return model.SavedEvent{CandidateEvent: model.CandidateEvent{Title: title, DateText: dateText}}
}

func TestGroupByDateCollapsesRangeSpacing(t *testing.T) {
	events := []model.SavedEvent{
		savedWithDate("a", "12/07/2025 - 14/07/2025"),
		savedWithDate("b", "12/07/2025-14/07/2025"),
		savedWithDate("c", "12/07/2025"),
	}

	groups := GroupByDate(events, time.UTC)
	require.Len(t, groups, 1)
	assert.Equal(t, "12/07/2025", groups[0].Key)
	require.Len(t, groups[0].Events, 3)
	assert.Equal(t, "a", groups[0].Events[0].Title)
	assert.Equal(t, "b", groups[0].Events[1].Title)
	assert.Equal(t, "c", groups[0].Events[2].Title)
}

func TestGroupByDateOrdering(t *testing.T) {
	events := []model.SavedEvent{
		savedWithDate("late", "20/08/2025"),
		savedWithDate("junk1", "sometime"),
		savedWithDate("early", "01/02/2025"),
		savedWithDate("junk2", "tba"),
	}

	groups := GroupByDate(events, time.UTC)
	require.Len(t, groups, 4)
	assert.Equal(t, "01/02/2025", groups[0].Key)
	assert.Equal(t, "20/08/2025", groups[1].Key)
	// Unparsable keys sort last, keeping encounter order.
	assert.Equal(t, "sometime", groups[2].Key)
	assert.Equal(t, "tba", groups[3].Key)
}

func TestGroupByDateEmpty(t *testing.T) {
	assert.Empty(t, GroupByDate(nil, time.UTC))
}
