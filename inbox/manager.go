// Package inbox holds the generated addresses and their last-seen envelopes,
// persisting the collection through a store.Book after every change.
package inbox

import (
	"context"
	"sync"

	"github.com/bassamadnan/tmpmail/api"
	"github.com/bassamadnan/tmpmail/apperror"
	"github.com/bassamadnan/tmpmail/poller"
	"github.com/bassamadnan/tmpmail/store"
	"github.com/bassamadnan/tmpmail/util"
	"go.uber.org/zap"
)

const invalidUsername = "Username must be 3-20 characters, start with a letter, and contain only lowercase letters and numbers."

// Gateway is the backend surface the manager needs; *api.Client satisfies it.
type Gateway interface {
	GenerateAddress(ctx context.Context, username, domain string) (*api.GeneratedAddress, error)
	Domains(ctx context.Context) ([]string, error)
	Envelopes(ctx context.Context, email string) ([]api.Envelope, error)
	Content(ctx context.Context, uid api.UID, email string) (*api.Content, error)
	Attachments(ctx context.Context, uid api.UID, email string) ([]api.Attachment, error)
}

type Manager struct {
	gateway Gateway
	book    *store.Book
	logger  *zap.Logger

	mu       sync.RWMutex
	records  []store.AddressRecord
	selected string
	filter   Filter
}

// NewManager loads the persisted collection. A load failure is returned
// together with a usable, empty manager.
func NewManager(ctx context.Context, gateway Gateway, book *store.Book, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{gateway: gateway, book: book, logger: logger}
	records, err := book.Load(ctx)
	if err != nil {
		logger.Error("load addresses", zap.Error(err))
		return m, err
	}
	m.records = book.Policy().Apply(records, book.Now())
	logger.Info("loaded addresses", zap.Int("count", len(m.records)))
	return m, nil
}

// Records returns a copy of the collection in creation order.
func (m *Manager) Records() []store.AddressRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.AddressRecord, len(m.records))
	for i, r := range m.records {
		out[i] = r.Clone()
	}
	return out
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Selected returns the selected record, falling back to the first one.
func (m *Manager) Selected() (store.AddressRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.selectedLocked()
	if !ok {
		return store.AddressRecord{}, false
	}
	return r.Clone(), true
}

func (m *Manager) selectedLocked() (store.AddressRecord, bool) {
	if i := m.indexLocked(m.selected); i >= 0 {
		return m.records[i], true
	}
	if len(m.records) > 0 {
		return m.records[0], true
	}
	return store.AddressRecord{}, false
}

func (m *Manager) indexLocked(address string) int {
	if address == "" {
		return -1
	}
	for i, r := range m.records {
		if r.Address == address {
			return i
		}
	}
	return -1
}

// Select makes address current. It reports false for unknown addresses.
func (m *Manager) Select(address string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexLocked(address) < 0 {
		return false
	}
	m.selected = address
	return true
}

// SelectNext moves the selection by delta, wrapping around, and returns the
// new selected address.
func (m *Manager) SelectNext(delta int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.records)
	if n == 0 {
		return ""
	}
	i := m.indexLocked(m.selected)
	if i < 0 {
		i = 0
	}
	i = ((i+delta)%n + n) % n
	m.selected = m.records[i].Address
	return m.selected
}

// Generate asks the backend for a new address and selects it. An empty
// username lets the backend choose one. When the address was created but
// could not be persisted, the record is returned with a StorageError.
func (m *Manager) Generate(ctx context.Context, username, domain string) (store.AddressRecord, error) {
	if username != "" && !util.ValidateUsername(username) {
		return store.AddressRecord{}, apperror.New(apperror.KindValidation, invalidUsername, nil)
	}
	generated, err := m.gateway.GenerateAddress(ctx, username, domain)
	if err != nil {
		return store.AddressRecord{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	record := store.AddressRecord{Address: generated.Email, CreatedAt: m.book.Now().UTC(), Envelopes: []api.Envelope{}}
	if i := m.indexLocked(record.Address); i >= 0 {
		m.records = append(m.records[:i], m.records[i+1:]...)
	}
	m.records = append(m.records, record)
	m.selected = record.Address
	m.logger.Info("address generated", zap.String("address", record.Address))
	return record.Clone(), m.persistLocked(ctx)
}

// Delete removes address; removing the last one clears the jar entry.
func (m *Manager) Delete(ctx context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(address)
	if i < 0 {
		return apperror.New(apperror.KindNotFound, "", nil)
	}
	m.records = append(m.records[:i], m.records[i+1:]...)
	if m.selected == address {
		m.selected = ""
	}
	m.logger.Info("address deleted", zap.String("address", address))
	return m.persistLocked(ctx)
}

func (m *Manager) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.selected = ""
	m.logger.Info("all addresses cleared")
	return m.book.Clear(ctx)
}

// Refresh fetches the envelopes of target and stores them on the record for
// target, returning how many were found. A result for an address deleted in
// the meantime is dropped.
func (m *Manager) Refresh(ctx context.Context, target string, silent bool) (int, error) {
	if target == "" {
		return 0, nil
	}
	envelopes, err := m.gateway.Envelopes(ctx, target)
	if err != nil {
		return 0, err
	}
	if envelopes == nil {
		envelopes = []api.Envelope{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(target)
	if i < 0 {
		m.logger.Debug("discarding envelopes for removed address", zap.String("address", target))
		return len(envelopes), nil
	}
	now := m.book.Now().UTC()
	m.records[i].Envelopes = envelopes
	m.records[i].LastChecked = &now
	m.logger.Debug("envelopes refreshed",
		zap.String("address", target),
		zap.Int("count", len(envelopes)),
		zap.Bool("silent", silent))
	return len(envelopes), m.persistLocked(ctx)
}

// RefreshFunc adapts Refresh for the poller.
func (m *Manager) RefreshFunc() poller.RefreshFunc {
	return func(ctx context.Context, target string, silent bool) error {
		_, err := m.Refresh(ctx, target, silent)
		return err
	}
}

func (m *Manager) SetFilter(f Filter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filter = f
}

// Visible returns the envelopes of r that the filter lets through.
func (m *Manager) Visible(r store.AddressRecord) []api.Envelope {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filter.Apply(r.Envelopes)
}

func (m *Manager) Content(ctx context.Context, uid api.UID) (*api.Content, error) {
	address, err := m.selectedAddress()
	if err != nil {
		return nil, err
	}
	return m.gateway.Content(ctx, uid, address)
}

func (m *Manager) Attachments(ctx context.Context, uid api.UID) ([]api.Attachment, error) {
	address, err := m.selectedAddress()
	if err != nil {
		return nil, err
	}
	return m.gateway.Attachments(ctx, uid, address)
}

func (m *Manager) Domains(ctx context.Context) ([]string, error) {
	return m.gateway.Domains(ctx)
}

func (m *Manager) Usage(ctx context.Context) store.Usage {
	return m.book.Usage(ctx)
}

// Prune drops records past the retention policy and returns how many went.
func (m *Manager) Prune(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.book.Policy().Apply(m.records, m.book.Now())
	removed := len(m.records) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	m.records = kept
	if m.indexLocked(m.selected) < 0 {
		m.selected = ""
	}
	return removed, m.persistLocked(ctx)
}

// Reload replaces the in-memory collection with the persisted one. The
// selection survives when its address is still present.
func (m *Manager) Reload(ctx context.Context) error {
	records, err := m.book.Load(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = m.book.Policy().Apply(records, m.book.Now())
	if m.indexLocked(m.selected) < 0 {
		m.selected = ""
	}
	return nil
}

func (m *Manager) selectedAddress() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.selectedLocked()
	if !ok {
		return "", apperror.New(apperror.KindValidation, "No address selected.", nil)
	}
	return r.Address, nil
}

func (m *Manager) persistLocked(ctx context.Context) error {
	if len(m.records) == 0 {
		return m.book.Clear(ctx)
	}
	m.records = m.book.Policy().Apply(m.records, m.book.Now())
	return m.book.Save(ctx, m.records)
}
