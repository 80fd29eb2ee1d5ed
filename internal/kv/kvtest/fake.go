// Package kvtest provides an in-memory stand-in for the KV store's
// open-candle operations, mirroring the semantics of the Lua upsert script.
// Used by aggregator and finalizer tests.
package kvtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"marketfuse/internal/kv"
	"marketfuse/internal/model"
)

// FakeCandleStore keeps open candles in a map guarded by a mutex, which is
// an honest model of the scripted single-round-trip update.
type FakeCandleStore struct {
	mu      sync.Mutex
	candles map[string]*model.OpenCandle
	ttls    map[string]int

	// Failure injection.
	UpsertErr error
	ReadErr   error
	DeleteErr error
}

// NewFakeCandleStore creates an empty fake.
func NewFakeCandleStore() *FakeCandleStore {
	return &FakeCandleStore{
		candles: make(map[string]*model.OpenCandle),
		ttls:    make(map[string]int),
	}
}

// UpsertTrade mirrors the atomic candle upsert script.
func (f *FakeCandleStore) UpsertTrade(_ context.Context, symbol string, minuteTSMS int64, price, volume float64, tsMS int64, ttlSec int) error {
	if f.UpsertErr != nil {
		return f.UpsertErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := kv.CandleKey(symbol, minuteTSMS)
	oc, ok := f.candles[key]
	if !ok {
		f.candles[key] = &model.OpenCandle{
			Symbol:       symbol,
			MinuteTSMS:   minuteTSMS,
			Open:         price,
			High:         price,
			Low:          price,
			Close:        price,
			Volume:       volume,
			LastUpdateMS: tsMS,
		}
	} else {
		if price > oc.High {
			oc.High = price
		}
		if price < oc.Low {
			oc.Low = price
		}
		oc.Close = price
		oc.Volume += volume
		oc.LastUpdateMS = tsMS
	}
	f.ttls[key] = ttlSec
	return nil
}

// ScanOpenCandles returns all open-candle keys, sorted for determinism.
func (f *FakeCandleStore) ScanOpenCandles(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.candles))
	for k := range f.candles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// ReadOpenCandle returns the candle at key.
func (f *FakeCandleStore) ReadOpenCandle(_ context.Context, key string) (model.OpenCandle, error) {
	if f.ReadErr != nil {
		return model.OpenCandle{}, f.ReadErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	oc, ok := f.candles[key]
	if !ok {
		return model.OpenCandle{}, fmt.Errorf("no candle at %s", key)
	}
	return *oc, nil
}

// DeleteKey removes the candle at key.
func (f *FakeCandleStore) DeleteKey(_ context.Context, key string) error {
	if f.DeleteErr != nil {
		return f.DeleteErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.candles, key)
	return nil
}

// Candle returns a copy of the open candle for (symbol, bucket), if any.
func (f *FakeCandleStore) Candle(symbol string, minuteTSMS int64) (model.OpenCandle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	oc, ok := f.candles[kv.CandleKey(symbol, minuteTSMS)]
	if !ok {
		return model.OpenCandle{}, false
	}
	return *oc, true
}

// TTL returns the last TTL set for (symbol, bucket).
func (f *FakeCandleStore) TTL(symbol string, minuteTSMS int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[kv.CandleKey(symbol, minuteTSMS)]
}

// Len returns the number of open candles.
func (f *FakeCandleStore) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.candles)
}
