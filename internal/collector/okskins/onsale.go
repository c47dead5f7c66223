package okskins

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/newthinker/skinquant/internal/collector"
)

type onSaleResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	Data     []struct {
		PlatformName string `json:"platformName"`
		SellCount    number `json:"sellCount"`
		Price        number `json:"price"`
	} `json:"data"`
}

func (c *Client) onSaleURL(itemID string) string {
	return fmt.Sprintf("%s/user/skin/v1/current-sell?timestamp=%d&itemId=%s",
		c.baseURL, c.now().UnixMilli(), itemID)
}

// FetchOnSale returns the current per-platform listing counts for symbol.
func (c *Client) FetchOnSale(ctx context.Context, symbol string) (*collector.OnSaleSnapshot, error) {
	item, err := c.catalog.Lookup(symbol)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, "current-sell", c.onSaleURL(item.ItemID), c.onSaleTimeout)
	if err != nil {
		return nil, c.unavailable(symbol, err)
	}

	var resp onSaleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, c.unavailable(symbol, fmt.Errorf("decoding response: %w", err))
	}
	if !resp.Success || len(resp.Data) == 0 {
		msg := resp.ErrorMsg
		if msg == "" {
			msg = "unknown error"
		}
		return nil, c.unavailable(symbol, fmt.Errorf("upstream error: %s", msg))
	}

	snap := &collector.OnSaleSnapshot{
		Symbol:    symbol,
		Platforms: make([]collector.PlatformListing, 0, len(resp.Data)),
		UpdatedAt: c.now().UTC(),
	}
	for _, p := range resp.Data {
		name := p.PlatformName
		if name == "" {
			name = "unknown"
		}
		listing := collector.PlatformListing{
			Platform:    name,
			OnSaleCount: int(p.SellCount.v),
			MinPrice:    p.Price.v,
		}
		snap.Platforms = append(snap.Platforms, listing)
		snap.Total += listing.OnSaleCount
	}
	return snap, nil
}
