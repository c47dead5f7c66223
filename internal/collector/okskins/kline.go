package okskins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/skinquant/internal/core"
)

// secondsCutoff separates second from millisecond epoch timestamps.
const secondsCutoff = 1e10

// number decodes a JSON number or numeric string. Anything else leaves it
// invalid rather than failing the whole payload.
type number struct {
	v  float64
	ok bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return nil
		}
		s = strings.TrimSpace(unq)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	n.v, n.ok = v, true
	return nil
}

type klineResponse struct {
	Data *[][]number `json:"data"`
}

func (c *Client) klineURL(typeVal string, end time.Time) string {
	return fmt.Sprintf("%s/user/steam/category/v1/kline?timestamp=%d&type=2&maxTime=%d&typeVal=%s&platform=%s&specialStyle",
		c.baseURL, c.now().UnixMilli(), end.Unix(), typeVal, c.platform)
}

// FetchHistory returns daily bars for symbol within [start, end+1 day).
// Zero bounds are open. On any failure it returns an empty slice and an
// error wrapping core.ErrDataUnavailable.
func (c *Client) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]core.OHLCV, error) {
	empty := []core.OHLCV{}

	item, err := c.catalog.Lookup(symbol)
	if err != nil {
		return empty, err
	}

	maxTime := end
	if maxTime.IsZero() {
		maxTime = c.now()
	}

	body, err := c.get(ctx, "kline", c.klineURL(item.TypeVal, maxTime), c.klineTimeout)
	if err != nil {
		return empty, c.unavailable(symbol, err)
	}

	var resp klineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return empty, c.unavailable(symbol, fmt.Errorf("decoding response: %w", err))
	}
	if resp.Data == nil {
		return empty, c.unavailable(symbol, fmt.Errorf("response has no data field"))
	}
	if len(*resp.Data) == 0 {
		return empty, c.unavailable(symbol, fmt.Errorf("no bars returned"))
	}

	bars := parseRows(symbol, *resp.Data)
	bars = filterRange(bars, start, end)
	if len(bars) == 0 {
		return empty, c.unavailable(symbol, fmt.Errorf("no usable bars in range"))
	}
	return bars, nil
}

func (c *Client) unavailable(symbol string, err error) error {
	c.logger.Warn("market data unavailable", zap.String("symbol", symbol), zap.Error(err))
	return core.WrapError(core.ErrDataUnavailable, fmt.Errorf("%s: %w", symbol, err))
}

// parseRows converts [ts, open, high, low, close, volume] rows, sorted
// ascending with duplicate timestamps collapsed to the last row.
func parseRows(symbol string, rows [][]number) []core.OHLCV {
	byTime := make(map[int64]core.OHLCV, len(rows))
	for _, row := range rows {
		if len(row) < 5 || !row[0].ok || !row[4].ok {
			continue
		}
		closePrice := row[4].v
		bar := core.OHLCV{
			Symbol: symbol,
			Time:   epochTime(row[0].v),
			Open:   field(row, 1, closePrice),
			High:   field(row, 2, closePrice),
			Low:    field(row, 3, closePrice),
			Close:  closePrice,
			Volume: field(row, 5, 0),
		}
		byTime[bar.Time.UnixNano()] = bar
	}

	bars := make([]core.OHLCV, 0, len(byTime))
	for _, b := range byTime {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars
}

func field(row []number, i int, fallback float64) float64 {
	if i < len(row) && row[i].ok {
		return row[i].v
	}
	return fallback
}

func epochTime(ts float64) time.Time {
	if ts < secondsCutoff {
		return time.Unix(int64(ts), 0).UTC()
	}
	return time.UnixMilli(int64(ts)).UTC()
}

// filterRange keeps bars in [start, end+1 day); zero bounds are open.
func filterRange(bars []core.OHLCV, start, end time.Time) []core.OHLCV {
	if start.IsZero() && end.IsZero() {
		return bars
	}
	limit := end.AddDate(0, 0, 1)
	out := bars[:0]
	for _, b := range bars {
		if !start.IsZero() && b.Time.Before(start) {
			continue
		}
		if !end.IsZero() && !b.Time.Before(limit) {
			continue
		}
		out = append(out, b)
	}
	return out
}
