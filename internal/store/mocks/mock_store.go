// Package mocks provides test doubles for the store.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tmc-media/leadgen-cli/internal/model"
	"github.com/tmc-media/leadgen-cli/internal/store"
)

// MockStore is a mock type for the Store interface.
type MockStore struct {
	mock.Mock
}

var _ store.Store = (*MockStore)(nil)

func (m *MockStore) InsertLeads(ctx context.Context, leads []model.Lead) (int, int, error) {
	args := m.Called(ctx, leads)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *MockStore) UpdateLeadField(ctx context.Context, leadID int64, field, value string) (bool, error) {
	args := m.Called(ctx, leadID, field, value)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) GetLead(ctx context.Context, leadID int64) (*model.Lead, error) {
	args := m.Called(ctx, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

func (m *MockStore) ListLeads(ctx context.Context, f store.Filter) ([]model.Lead, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Lead), args.Error(1)
}

func (m *MockStore) CountLeads(ctx context.Context, f store.Filter) (int, error) {
	args := m.Called(ctx, f)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) DeleteLeads(ctx context.Context, leadIDs []int64) (int, error) {
	args := m.Called(ctx, leadIDs)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) LeadsMissingContact(ctx context.Context, limit int) ([]model.Lead, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Lead), args.Error(1)
}

func (m *MockStore) LeadExists(ctx context.Context, name, address string) (bool, error) {
	args := m.Called(ctx, name, address)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) MergeDuplicates(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) UnenrichedLeads(ctx context.Context) ([]model.Lead, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Lead), args.Error(1)
}

func (m *MockStore) SaveEnriched(ctx context.Context, e model.BasicEnrichment) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockStore) SaveAdvancedReport(ctx context.Context, r model.AdvancedReport) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockStore) GetAdvancedReport(ctx context.Context, leadID int64) (*model.AdvancedReport, error) {
	args := m.Called(ctx, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AdvancedReport), args.Error(1)
}

func (m *MockStore) RecordSmartListEval(ctx context.Context, e model.SmartListEntry) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockStore) SmartListEvaluatedIDs(ctx context.Context, listName string) (map[int64]bool, error) {
	args := m.Called(ctx, listName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]bool), args.Error(1)
}

func (m *MockStore) SmartListMembers(ctx context.Context, listName string) ([]model.SmartListEntry, error) {
	args := m.Called(ctx, listName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SmartListEntry), args.Error(1)
}

func (m *MockStore) SmartListNames(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}
