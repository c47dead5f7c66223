package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newthinker/skinquant/internal/api/response"
	"github.com/newthinker/skinquant/internal/collector"
	"github.com/newthinker/skinquant/internal/core"
)

var testNow = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type fakeMarket struct {
	bars       []core.OHLCV
	snap       *collector.OnSaleSnapshot
	historyErr error
	onSaleErr  error
}

func (f *fakeMarket) Name() string { return "fake" }

func (f *fakeMarket) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]core.OHLCV, error) {
	if f.historyErr != nil {
		return []core.OHLCV{}, f.historyErr
	}
	out := []core.OHLCV{}
	for _, b := range f.bars {
		if (start.IsZero() || !b.Time.Before(start)) && (end.IsZero() || !b.Time.After(end)) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeMarket) FetchOnSale(ctx context.Context, symbol string) (*collector.OnSaleSnapshot, error) {
	if f.onSaleErr != nil {
		return nil, f.onSaleErr
	}
	return f.snap, nil
}

func dailyBars(days int) []core.OHLCV {
	bars := make([]core.OHLCV, 0, days+1)
	for i := 0; i <= days; i++ {
		c := 100 + 10*math.Sin(float64(i)/5) + 0.3*float64(i)
		bars = append(bars, core.OHLCV{
			Time:   testNow.AddDate(0, 0, i-days),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 20,
		})
	}
	return bars
}

func testCatalog(t *testing.T) *collector.Catalog {
	t.Helper()
	c, err := collector.NewCatalog([]collector.Item{
		{Name: "AK-47 | Redline", Group: "rifles", TypeVal: "101"},
		{Name: "AWP | Asiimov", Group: "rifles", TypeVal: "102"},
		{Name: "Karambit | Fade", Group: "knives", TypeVal: "201"},
	})
	require.NoError(t, err)
	return c
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp response.SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is not an object: %s", w.Body.String())
	return data
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorDetail {
	t.Helper()
	var resp response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}
