package journal

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"market_client/internal/core"
	"market_client/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openJournal(t *testing.T, buffer int) (*SQLiteJournal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, buffer, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j, path
}

func flush(t *testing.T, j *SQLiteJournal) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, j.Flush(ctx))
}

func TestJournal_RecordsObserverEventsInOrder(t *testing.T) {
	j, _ := openJournal(t, 0)

	j.OnSessionStateChanged(core.StateRegistering)
	j.OnBalanceChanged(decimal.NewFromInt(1000))
	j.OnWishListChanged([]core.ItemWish{{Category: core.CategoryBooks, MaxPrice: decimal.NewFromInt(20)}})
	j.OnLogEvent(core.LogEvent{Level: core.LogInfo, Kind: core.KindSession, Message: "Registered as alice"})
	j.OnListingChanged(nil)
	flush(t, j)

	entries, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	kinds := make([]string, len(entries))
	for i, e := range entries {
		kinds[i] = e.Kind
		assert.Equal(t, j.RunID(), e.RunID)
	}
	assert.Equal(t, []string{KindState, KindBalance, KindWishList, KindLog, KindListing}, kinds)

	var state map[string]string
	require.NoError(t, json.Unmarshal(entries[0].Payload, &state))
	assert.Equal(t, "REGISTERING", state["state"])

	var event core.LogEvent
	require.NoError(t, json.Unmarshal(entries[3].Payload, &event))
	assert.Equal(t, "Registered as alice", event.Message)
}

func TestJournal_RecentIsLimitedToLatest(t *testing.T) {
	j, _ := openJournal(t, 0)
	for i := 0; i < 5; i++ {
		j.OnBalanceChanged(decimal.NewFromInt(int64(i)))
	}
	flush(t, j)

	entries, err := j.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var last map[string]decimal.Decimal
	require.NoError(t, json.Unmarshal(entries[1].Payload, &last))
	assert.True(t, last["balance"].Equal(decimal.NewFromInt(4)))
}

func TestJournal_RunsAreSeparated(t *testing.T) {
	first, path := openJournal(t, 0)
	first.OnLogEvent(core.LogEvent{Message: "first run"})
	require.NoError(t, first.Close())

	second, err := Open(path, 0, logging.NewNopLogger())
	require.NoError(t, err)
	defer second.Close()
	assert.NotEqual(t, first.RunID(), second.RunID())

	entries, err := second.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJournal_CloseIsIdempotentAndStopsRecording(t *testing.T) {
	j, _ := openJournal(t, 0)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	j.OnLogEvent(core.LogEvent{Message: "after close"})
	assert.NoError(t, j.Flush(context.Background()))
	assert.Zero(t, j.Dropped())
}
