package cart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(seq int64, typ EventType, productID string, qty int) Event {
	return Event{
		ID:        "e" + string(rune('a'+seq)),
		Seq:       seq,
		Type:      typ,
		ProductID: productID,
		Quantity:  qty,
		CreatedAt: time.Unix(1700000000+seq, 0).UTC(),
	}
}

func TestReplay(t *testing.T) {
	events := []Event{
		ev(1, EventItemAdded, "a", 2),
		ev(2, EventItemAdded, "a", 3),
		ev(3, EventItemAdded, "b", 1),
		ev(4, EventItemUpdated, "b", 4),
		ev(5, EventCartCleared, "", 0),
		ev(6, EventItemAdded, "c", 1),
		ev(7, EventItemAdded, "a", 1),
		ev(8, EventItemRemoved, "c", 0),
	}

	rows := Replay(events)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].ProductID)
	assert.Equal(t, 1, rows[0].Quantity)
	assert.Equal(t, events[6].ID, rows[0].LastEventID)
	assert.Equal(t, events[6].CreatedAt, rows[0].LastUpdated)
}

func TestReplay_EmptyAndIdempotent(t *testing.T) {
	assert.Empty(t, Replay(nil))

	events := []Event{ev(1, EventItemAdded, "x", 2), ev(2, EventItemAdded, "y", 5)}
	assert.Equal(t, Replay(events), Replay(events))
	assert.True(t, sameView(Replay(events), []ViewRow{Replay(events)[1], Replay(events)[0]}))
}

func TestStep_UpdateToZeroDeletes(t *testing.T) {
	row, keep := step(ViewRow{ProductID: "a", Quantity: 3}, true, ev(2, EventItemUpdated, "a", 0))
	assert.False(t, keep)
	assert.Equal(t, ViewRow{}, row)
}
