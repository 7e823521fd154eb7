package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/dhsimulator/internal/domain/calculator"
	"github.com/bigkaa/dhsimulator/internal/domain/model"
	"github.com/bigkaa/dhsimulator/internal/flyer"
	"github.com/bigkaa/dhsimulator/internal/keycloak"
	"github.com/bigkaa/dhsimulator/internal/repository"
)

// testLogger — логгер, отбрасывающий вывод.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

// --- AppConfigRepository ---

// mockAppConfigRepo — хранилище app_config в памяти со счётчиком чтений.
type mockAppConfigRepo struct {
	mu      sync.Mutex
	entries map[string]json.RawMessage
	reads   int
	setErr  error
}

func newMockAppConfigRepo() *mockAppConfigRepo {
	return &mockAppConfigRepo{entries: map[string]json.RawMessage{}}
}

func (m *mockAppConfigRepo) Get(_ context.Context, key string) (*repository.AppConfigEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	v, ok := m.entries[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &repository.AppConfigEntry{Key: key, Value: v}, nil
}

func (m *mockAppConfigRepo) GetMany(_ context.Context, keys []string) (map[string]repository.AppConfigEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	result := make(map[string]repository.AppConfigEntry)
	for _, k := range keys {
		if v, ok := m.entries[k]; ok {
			result[k] = repository.AppConfigEntry{Key: k, Value: v}
		}
	}
	return result, nil
}

func (m *mockAppConfigRepo) Set(_ context.Context, key string, value json.RawMessage, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.entries[key] = value
	return nil
}

func (m *mockAppConfigRepo) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// --- ClientLimitRepository ---

// mockClientRepo — мок ClientLimitRepository.
type mockClientRepo struct {
	listFn          func(ctx context.Context, limit int) ([]*model.ClientLimit, error)
	listIDsFn       func(ctx context.Context) ([]string, error)
	getByIDFn       func(ctx context.Context, id string) (*model.ClientLimit, error)
	getByDNIFn      func(ctx context.Context, dni string) (*model.ClientLimit, error)
	upsertFn        func(ctx context.Context, c *model.ClientLimit) error
	updateFn        func(ctx context.Context, c *model.ClientLimit) error
	setLimitsFn     func(ctx context.Context, id string, minAmount, maxAmount float64) error
	setLimitsManyFn func(ctx context.Context, ids []string, minAmount, maxAmount float64) (int64, error)
	deleteFn        func(ctx context.Context, id string) error
}

func (m *mockClientRepo) List(ctx context.Context, limit int) ([]*model.ClientLimit, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockClientRepo) ListIDs(ctx context.Context) ([]string, error) {
	if m.listIDsFn != nil {
		return m.listIDsFn(ctx)
	}
	return nil, nil
}

func (m *mockClientRepo) GetByID(ctx context.Context, id string) (*model.ClientLimit, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockClientRepo) GetByDNI(ctx context.Context, dni string) (*model.ClientLimit, error) {
	if m.getByDNIFn != nil {
		return m.getByDNIFn(ctx, dni)
	}
	return nil, repository.ErrNotFound
}

func (m *mockClientRepo) Upsert(ctx context.Context, c *model.ClientLimit) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, c)
	}
	return nil
}

func (m *mockClientRepo) Update(ctx context.Context, c *model.ClientLimit) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, c)
	}
	return nil
}

func (m *mockClientRepo) SetLimits(ctx context.Context, id string, minAmount, maxAmount float64) error {
	if m.setLimitsFn != nil {
		return m.setLimitsFn(ctx, id, minAmount, maxAmount)
	}
	return nil
}

func (m *mockClientRepo) SetLimitsMany(ctx context.Context, ids []string, minAmount, maxAmount float64) (int64, error) {
	if m.setLimitsManyFn != nil {
		return m.setLimitsManyFn(ctx, ids, minAmount, maxAmount)
	}
	return int64(len(ids)), nil
}

func (m *mockClientRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// mockTxRunner выполняет функцию без транзакции. q — nil.
type mockTxRunner struct {
	err error
}

func (m *mockTxRunner) RunInTx(_ context.Context, fn func(q repository.DBTX) error) error {
	if m.err != nil {
		return m.err
	}
	return fn(nil)
}

// --- ProfileRepository ---

// mockProfileRepo — хранилище профилей в памяти.
type mockProfileRepo struct {
	mu        sync.Mutex
	profiles  map[string]*model.UserProfile
	upsertErr error
	getErr    error
	deleteErr error
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{profiles: map[string]*model.UserProfile{}}
}

func (m *mockProfileRepo) GetByID(_ context.Context, id string) (*model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (m *mockProfileRepo) ListByIDs(_ context.Context, ids []string) (map[string]*model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[string]*model.UserProfile)
	for _, id := range ids {
		if p, ok := m.profiles[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (m *mockProfileRepo) Upsert(_ context.Context, p *model.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.profiles[p.ID] = p
	return nil
}

func (m *mockProfileRepo) EnsureExists(_ context.Context, p *model.UserProfile) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.ID]; ok {
		return false, nil
	}
	m.profiles[p.ID] = p
	return true, nil
}

func (m *mockProfileRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.profiles[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.profiles, id)
	return nil
}

func (m *mockProfileRepo) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.profiles), nil
}

// --- SimulationLogRepository ---

// mockLogRepo — журнал симуляций в памяти.
type mockLogRepo struct {
	mu        sync.Mutex
	entries   []*model.SimulationLogEntry
	insertErr error
	// insertDelay — задержка вставки (проверка неблокирующей записи)
	insertDelay time.Duration
	since       time.Time
}

func (m *mockLogRepo) Insert(ctx context.Context, e *model.SimulationLogEntry) error {
	if m.insertDelay > 0 {
		select {
		case <-time.After(m.insertDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockLogRepo) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

func (m *mockLogRepo) CountSince(_ context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since = since
	n := 0
	for _, e := range m.entries {
		if !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *mockLogRepo) TopUsers(_ context.Context, _ int) ([]model.TopUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	var order []string
	for _, e := range m.entries {
		if counts[e.UserID] == 0 {
			order = append(order, e.UserID)
		}
		counts[e.UserID]++
	}
	top := make([]model.TopUser, 0, len(order))
	for _, id := range order {
		top = append(top, model.TopUser{ID: id, Email: "Unknown", Count: counts[id]})
	}
	return top, nil
}

func (m *mockLogRepo) DeleteAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.entries))
	m.entries = nil
	return n, nil
}

func (m *mockLogRepo) snapshot() []*model.SimulationLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.SimulationLogEntry(nil), m.entries...)
}

// --- IdentityProvider ---

// mockIDP — мок Keycloak Admin API.
type mockIDP struct {
	users          []keycloak.KeycloakUser
	listErr        error
	createFn       func(ctx context.Context, email, password string) (string, error)
	deleteErr      error
	resetErr       error
	resetPasswords map[string]string
}

func (m *mockIDP) ListUsers(_ context.Context, _ string, _, _ int) ([]keycloak.KeycloakUser, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.users, nil
}

func (m *mockIDP) CreateUser(ctx context.Context, email, password string) (string, error) {
	if m.createFn != nil {
		return m.createFn(ctx, email, password)
	}
	return "kc-new", nil
}

func (m *mockIDP) DeleteUser(_ context.Context, _ string) error {
	return m.deleteErr
}

func (m *mockIDP) ResetPassword(_ context.Context, id, password string) error {
	if m.resetErr != nil {
		return m.resetErr
	}
	if m.resetPasswords == nil {
		m.resetPasswords = map[string]string{}
	}
	m.resetPasswords[id] = password
	return nil
}

// --- Симулятор ---

// recordedAction — действие, переданное в ActionRecorder.
type recordedAction struct {
	UserID       string
	Amount       float64
	Installments int
	Metadata     map[string]any
}

// mockRecorder запоминает записанные действия.
type mockRecorder struct {
	mu      sync.Mutex
	actions []recordedAction
}

func (m *mockRecorder) Record(userID string, amount float64, installments int, metadata map[string]any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, recordedAction{userID, amount, installments, metadata})
	return true
}

// staticSnapshot — фиксированная конфигурация.
type staticSnapshot struct {
	snap calculator.Snapshot
	err  error
}

func (s staticSnapshot) Snapshot(context.Context) (calculator.Snapshot, error) {
	return s.snap, s.err
}

// mockRenderer запоминает последнюю карточку.
type mockRenderer struct {
	last flyer.Card
	err  error
}

func (m *mockRenderer) RenderBytes(card flyer.Card) ([]byte, error) {
	m.last = card
	if m.err != nil {
		return nil, m.err
	}
	return []byte{0xff, 0xd8, 0xff}, nil
}
