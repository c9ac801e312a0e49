package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bassamadnan/tmpmail/api"
	"github.com/bassamadnan/tmpmail/apperror"
	"go.uber.org/zap"
)

const (
	DefaultCookieName = "tempEmails"
	DefaultMaxRecords = 10
	DefaultExpiry     = 7 * 24 * time.Hour

	// cookieBudget is the size browsers allow for one cookie; usage is
	// reported against it.
	cookieBudget = 4000
)

// AddressRecord is one generated address and the envelopes last seen for it.
type AddressRecord struct {
	Address     string         `json:"email"`
	CreatedAt   time.Time      `json:"timestamp"`
	Envelopes   []api.Envelope `json:"envelopes"`
	LastChecked *time.Time     `json:"lastChecked"`
}

// Clone returns a copy that shares nothing with r.
func (r AddressRecord) Clone() AddressRecord {
	out := r
	if r.Envelopes != nil {
		out.Envelopes = append([]api.Envelope(nil), r.Envelopes...)
	}
	if r.LastChecked != nil {
		t := *r.LastChecked
		out.LastChecked = &t
	}
	return out
}

// Policy bounds what is kept: at most MaxRecords, none older than Expiry.
type Policy struct {
	MaxRecords int
	Expiry     time.Duration
}

// Apply keeps the last MaxRecords records, then drops those created at or
// before now-Expiry. Order is preserved.
func (p Policy) Apply(records []AddressRecord, now time.Time) []AddressRecord {
	limited := records
	if p.MaxRecords > 0 && len(limited) > p.MaxRecords {
		limited = limited[len(limited)-p.MaxRecords:]
	}
	cutoff := now.Add(-p.Expiry)
	out := make([]AddressRecord, 0, len(limited))
	for _, r := range limited {
		if p.Expiry > 0 && !r.CreatedAt.After(cutoff) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Usage describes how much of the cookie budget the stored collection uses.
type Usage struct {
	Size       int
	Percentage float64
	Count      int
}

// Book reads and writes the address collection as one jar entry.
type Book struct {
	jar    Jar
	name   string
	policy Policy
	logger *zap.Logger
	now    func() time.Time
}

func NewBook(jar Jar, name string, policy Policy, logger *zap.Logger) *Book {
	if name == "" {
		name = DefaultCookieName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Book{jar: jar, name: name, policy: policy, logger: logger, now: time.Now}
}

func (b *Book) Policy() Policy { return b.policy }

func (b *Book) Now() time.Time { return b.now() }

// SetClock replaces the time source used for record timestamps and the
// retention policy. It must be called before the book is shared.
func (b *Book) SetClock(now func() time.Time) { b.now = now }

// Save applies the policy and writes what remains.
func (b *Book) Save(ctx context.Context, records []AddressRecord) error {
	now := b.now()
	kept := b.policy.Apply(records, now)
	data, err := json.Marshal(kept)
	if err != nil {
		return apperror.New(apperror.KindStorage, "", err)
	}
	if len(data) > cookieBudget {
		b.logger.Warn("stored address list exceeds cookie budget", zap.Int("bytes", len(data)))
	}
	if err := b.jar.Set(ctx, b.name, data, now.Add(b.policy.Expiry)); err != nil {
		b.logger.Error("save addresses", zap.Error(err))
		return apperror.New(apperror.KindStorage, "", err)
	}
	return nil
}

// Load returns the stored records. Undecodable data reads as an empty list and
// records without an address or timestamp are dropped.
func (b *Book) Load(ctx context.Context) ([]AddressRecord, error) {
	data, found, err := b.jar.Get(ctx, b.name)
	if err != nil {
		return nil, apperror.New(apperror.KindStorage, "", err)
	}
	if !found {
		return []AddressRecord{}, nil
	}
	var records []AddressRecord
	if err := json.Unmarshal(data, &records); err != nil {
		b.logger.Warn("discarding undecodable address list", zap.Error(err))
		return []AddressRecord{}, nil
	}
	valid := records[:0]
	for _, r := range records {
		if r.Address == "" || r.CreatedAt.IsZero() {
			continue
		}
		valid = append(valid, r)
	}
	return valid, nil
}

func (b *Book) Clear(ctx context.Context) error {
	if err := b.jar.Delete(ctx, b.name); err != nil {
		return apperror.New(apperror.KindStorage, "", err)
	}
	return nil
}

func (b *Book) Usage(ctx context.Context) Usage {
	records, err := b.Load(ctx)
	if err != nil {
		return Usage{}
	}
	data, _ := json.Marshal(records)
	return Usage{
		Size:       len(data),
		Percentage: float64(len(data)) / cookieBudget * 100,
		Count:      len(records),
	}
}
