package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	store, err := NewStore(path)
	require.NoError(t, err)
	assert.Empty(t, store.All())

	rec := Record{
		Timestamp:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		FromSymbol: "ETH",
		ToSymbol:   "USDC",
		AmountIn:   "1",
		AmountOut:  "2487.52",
		TxHash:     "0xabc",
		State:      "settled",
	}
	require.NoError(t, store.Append(rec))

	// A fresh store reads what the first one wrote.
	reopened, err := NewStore(path)
	require.NoError(t, err)
	records := reopened.All()
	require.Len(t, records, 1)
	assert.Equal(t, rec.FromSymbol, records[0].FromSymbol)
	assert.Equal(t, rec.TxHash, records[0].TxHash)
	assert.True(t, rec.Timestamp.Equal(records[0].Timestamp))
}

func TestStoreAppendsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	store, err := NewStore(path)
	require.NoError(t, err)

	for _, state := range []string{"settled", "failed", "settled"} {
		require.NoError(t, store.Append(Record{State: state, Timestamp: time.Now()}))
	}

	records := store.All()
	require.Len(t, records, 3)
	assert.Equal(t, "failed", records[1].State)
}

func TestStoreAllReturnsCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(Record{State: "settled"}))

	records := store.All()
	records[0].State = "mutated"
	assert.Equal(t, "settled", store.All()[0].State)
}
