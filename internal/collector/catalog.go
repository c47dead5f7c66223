package collector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/newthinker/skinquant/internal/core"
)

// Item is a tradable catalog entry. TypeVal keys the kline endpoint and
// ItemID keys the on-sale endpoint; ItemID defaults to TypeVal.
type Item struct {
	Name    string `json:"name" mapstructure:"name"`
	Group   string `json:"group" mapstructure:"group"`
	TypeVal string `json:"type_val" mapstructure:"type_val"`
	ItemID  string `json:"item_id,omitempty" mapstructure:"item_id"`
}

// Catalog resolves symbol names to upstream identifiers.
type Catalog struct {
	items map[string]Item
	order []string
}

// NewCatalog validates items and preserves their order.
func NewCatalog(items []Item) (*Catalog, error) {
	c := &Catalog{items: make(map[string]Item, len(items))}
	for _, it := range items {
		it.Name = strings.TrimSpace(it.Name)
		if it.Name == "" {
			return nil, core.Errorf(core.ErrConfigInvalid, "catalog item without name")
		}
		if it.TypeVal == "" {
			return nil, core.Errorf(core.ErrConfigInvalid, "catalog item %q has no type_val", it.Name)
		}
		if _, dup := c.items[it.Name]; dup {
			return nil, core.Errorf(core.ErrConfigInvalid, "duplicate catalog item %q", it.Name)
		}
		if it.ItemID == "" {
			it.ItemID = it.TypeVal
		}
		if it.Group == "" {
			it.Group = "default"
		}
		c.items[it.Name] = it
		c.order = append(c.order, it.Name)
	}
	return c, nil
}

// Lookup returns the item for name.
func (c *Catalog) Lookup(name string) (Item, error) {
	it, ok := c.items[name]
	if !ok {
		return Item{}, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("%q is not in the catalog", name))
	}
	return it, nil
}

// Items returns every item in configuration order.
func (c *Catalog) Items() []Item {
	out := make([]Item, len(c.order))
	for i, name := range c.order {
		out[i] = c.items[name]
	}
	return out
}

// Names returns every symbol name in configuration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// Groups maps each group to its symbol names.
func (c *Catalog) Groups() map[string][]string {
	groups := make(map[string][]string)
	for _, name := range c.order {
		g := c.items[name].Group
		groups[g] = append(groups[g], name)
	}
	return groups
}

// GroupNames returns the group names sorted.
func (c *Catalog) GroupNames() []string {
	groups := c.Groups()
	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)
	return names
}

// DefaultItems is the built-in catalog used when none is configured.
func DefaultItems() []Item {
	return []Item{
		{Name: "AK-47 | Hedge Maze (Field-Tested)", Group: "flagship", TypeVal: "525873303"},
		{Name: "AWP | Mint (Field-Tested)", Group: "flagship", TypeVal: "489477781"},
		{Name: "Sport Gloves | Superconductor (Field-Tested)", Group: "flagship", TypeVal: "553370575"},
		{Name: "Butterfly Knife | Gamma Doppler", Group: "flagship", TypeVal: "914710920195035136"},
		{Name: "M4A4 | Hydroponic", Group: "collectibles", TypeVal: "26422"},
		{Name: "AK-47 | Red Nova", Group: "collectibles", TypeVal: "24693"},
		{Name: "AWP | Medusa", Group: "collectibles", TypeVal: "914680597258567680"},
		{Name: "AK-47 | Bloodsport", Group: "ak47", TypeVal: "553370749"},
		{Name: "AK-47 | Fuel Injector", Group: "ak47", TypeVal: "27166"},
		{Name: "AK-47 | Vulcan", Group: "ak47", TypeVal: "24281"},
		{Name: "AK-47 | Redline", Group: "ak47", TypeVal: "24339"},
		{Name: "M4A4 | Monster Within", Group: "armory", TypeVal: "1315999843394654208"},
		{Name: "AWP | Crakow!", Group: "armory", TypeVal: "1315936965627445248"},
		{Name: "Sticker | Tyloo 2021", Group: "stickers", TypeVal: "925497374167523328"},
		{Name: "Agent | Sally the Runaway", Group: "agents", TypeVal: "808803044176429056"},
	}
}
