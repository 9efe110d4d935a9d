package recovery

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/models"
)

type fakeJobRepository struct {
	resetCount   int64
	resetErr     error
	activeJobs   map[string]bool
	enqueued     []db.JobEnqueueInput
	enqueueErr   error
	activeJobErr error
}

func (f *fakeJobRepository) ResetRunningToQueued(ctx context.Context) (int64, error) {
	return f.resetCount, f.resetErr
}

func (f *fakeJobRepository) HasActiveJob(ctx context.Context, caseID uuid.UUID, jobType string) (bool, error) {
	if f.activeJobErr != nil {
		return false, f.activeJobErr
	}
	return f.activeJobs[caseID.String()+"|"+jobType], nil
}

func (f *fakeJobRepository) Enqueue(ctx context.Context, in db.JobEnqueueInput) (*models.Job, error) {
	if f.enqueueErr != nil {
		return nil, f.enqueueErr
	}
	f.enqueued = append(f.enqueued, in)
	return &models.Job{JobType: in.JobType}, nil
}

type fakeCaseLister struct {
	cases []db.RecoverySnapshot
	err   error
}

func (f *fakeCaseLister) ListNonTerminalCasesForRecovery(ctx context.Context) ([]db.RecoverySnapshot, error) {
	return f.cases, f.err
}

func TestReconcileRunningJobs(t *testing.T) {
	jobs := &fakeJobRepository{resetCount: 3}
	n, err := ReconcileRunningJobs(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestService_Recover_EnqueuesMissingNextStepJobs(t *testing.T) {
	caseA := uuid.New()
	caseB := uuid.New()
	caseC := uuid.New()

	cases := &fakeCaseLister{cases: []db.RecoverySnapshot{
		{CaseID: caseA, Status: models.StatusDoctorAccepted},
		{CaseID: caseB, Status: models.StatusApptConfirmed},
		{CaseID: caseC, Status: models.StatusExtracting}, // not in the recovery map, skipped
	}}
	jobs := &fakeJobRepository{activeJobs: map[string]bool{}}

	svc := NewService(cases, jobs)
	n, err := svc.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, jobs.enqueued, 2)
	assert.Equal(t, models.JobTypePostRoom3Request, jobs.enqueued[0].JobType)
	assert.Equal(t, models.JobTypePostRoom1FinalApptConfirmed, jobs.enqueued[1].JobType)
}

func TestService_Recover_SkipsCasesWithActiveJob(t *testing.T) {
	caseA := uuid.New()
	cases := &fakeCaseLister{cases: []db.RecoverySnapshot{
		{CaseID: caseA, Status: models.StatusDoctorAccepted},
	}}
	jobs := &fakeJobRepository{activeJobs: map[string]bool{
		caseA.String() + "|" + models.JobTypePostRoom3Request: true,
	}}

	svc := NewService(cases, jobs)
	n, err := svc.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, jobs.enqueued)
}
