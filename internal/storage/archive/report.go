package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Report is an archived analysis or optimization run.
type Report struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Symbol    string          `json:"symbol"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Reports stores JSON reports under reports/<kind>/<symbol>/<date>/<id>.json.
type Reports struct {
	store Storage
	now   func() time.Time
}

// NewReports wraps a storage backend.
func NewReports(store Storage) *Reports {
	return &Reports{store: store, now: func() time.Time { return time.Now().UTC() }}
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9]+`)

// slug lowercases a symbol into a path-safe segment.
func slug(s string) string {
	out := strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if out == "" {
		return "unnamed"
	}
	return out
}

func (r *Reports) dir(kind, symbol string) string {
	return fmt.Sprintf("reports/%s/%s", slug(kind), slug(symbol))
}

// Save marshals payload and writes a new report, returning its key.
func (r *Reports) Save(ctx context.Context, kind, symbol string, payload any) (string, *Report, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("encoding report payload: %w", err)
	}

	rep := &Report{
		ID:        uuid.NewString(),
		Kind:      kind,
		Symbol:    symbol,
		CreatedAt: r.now(),
		Payload:   raw,
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("encoding report: %w", err)
	}

	key := fmt.Sprintf("%s/%s/%s.json", r.dir(kind, symbol), rep.CreatedAt.Format("2006-01-02"), rep.ID)
	if err := r.store.Write(ctx, key, data); err != nil {
		return "", nil, fmt.Errorf("archiving report: %w", err)
	}
	return key, rep, nil
}

// Load reads a report by key.
func (r *Reports) Load(ctx context.Context, key string) (*Report, error) {
	data, err := r.store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("decoding report %s: %w", key, err)
	}
	return &rep, nil
}

// List returns report keys for kind and symbol, oldest first.
func (r *Reports) List(ctx context.Context, kind, symbol string) ([]string, error) {
	return r.store.List(ctx, r.dir(kind, symbol))
}
