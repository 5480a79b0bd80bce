package mocks

import (
	"context"
	"time"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	args := m.Called(ctx)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) ListByOwner(ctx context.Context, ownerID string, status models.WorkflowStatus) ([]*models.Workflow, error) {
	args := m.Called(ctx, ownerID, status)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockRunRepository is a mock implementation of persistence.RunRepository.
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Save(ctx context.Context, run *models.WorkflowRun) error {
	args := m.Called(ctx, run)

	return args.Error(0)
}

func (m *MockRunRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	args := m.Called(ctx, id)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowRun), args.Error(1)
}

func (m *MockRunRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	args := m.Called(ctx, workflowID)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowRun), args.Error(1)
}

func (m *MockRunRepository) DueRuns(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowRun, error) {
	args := m.Called(ctx, now, limit)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowRun), args.Error(1)
}

func (m *MockRunRepository) ClaimRun(ctx context.Context, id string, from, to models.RunStatus) (*models.WorkflowRun, error) {
	args := m.Called(ctx, id, from, to)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowRun), args.Error(1)
}

func (m *MockRunRepository) ClaimDue(ctx context.Context, id, token string, now, leaseUntil time.Time) (*models.WorkflowRun, error) {
	args := m.Called(ctx, id, token, now, leaseUntil)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowRun), args.Error(1)
}

func (m *MockRunRepository) RenewLease(ctx context.Context, id, token string, leaseUntil time.Time) error {
	args := m.Called(ctx, id, token, leaseUntil)

	return args.Error(0)
}

func (m *MockRunRepository) SaveClaimed(ctx context.Context, run *models.WorkflowRun, token string) error {
	args := m.Called(ctx, run, token)

	return args.Error(0)
}

// MockScheduleRepository is a mock implementation of persistence.ScheduleRepository.
type MockScheduleRepository struct {
	mock.Mock
}

func (m *MockScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	args := m.Called(ctx, schedule)

	return args.Error(0)
}

func (m *MockScheduleRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Schedule, error) {
	args := m.Called(ctx, workflowID)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) Due(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	args := m.Called(ctx, now)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) DeleteByWorkflow(ctx context.Context, workflowID string) error {
	args := m.Called(ctx, workflowID)

	return args.Error(0)
}

// MockPersistence is a mock implementation of persistence.Persistence backed by the
// mock repositories.
type MockPersistence struct {
	mock.Mock

	Workflows *MockWorkflowRepository
	Runs      *MockRunRepository
	Schedules *MockScheduleRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Workflows: &MockWorkflowRepository{},
		Runs:      &MockRunRepository{},
		Schedules: &MockScheduleRepository{},
	}
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.Workflows
}

func (m *MockPersistence) RunRepository() persistence.RunRepository {
	return m.Runs
}

func (m *MockPersistence) ScheduleRepository() persistence.ScheduleRepository {
	return m.Schedules
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
