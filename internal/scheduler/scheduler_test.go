package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/elevateforhumanity/cima-importer/internal/models"
	"github.com/elevateforhumanity/cima-importer/internal/utils"
)

type fakeImporter struct {
	payloads [][]byte
	err      error
}

func (f *fakeImporter) Import(_ context.Context, payload []byte) (*models.ImportResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, payload)
	return &models.ImportResponse{OK: true, BatchID: "batch", Imported: 1}, nil
}

type fakeFiles struct {
	objects  map[string][]byte
	archived []string
	fetchErr map[string]error
	listErr  error
}

func (f *fakeFiles) ListInbound(context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var keys []string
	for k := range f.objects {
		keys = append(keys, k)
	}
	return keys, nil
}

func (f *fakeFiles) Fetch(_ context.Context, key string) ([]byte, error) {
	if err := f.fetchErr[key]; err != nil {
		return nil, err
	}
	return f.objects[key], nil
}

func (f *fakeFiles) Archive(_ context.Context, key string) error {
	f.archived = append(f.archived, key)
	return nil
}

type fakeMaintenance struct {
	purges   int
	marks    int
	purgeErr error
	lastCut  time.Time
}

func (f *fakeMaintenance) PurgeExpiredSignTokens(context.Context, time.Time) (int64, error) {
	if f.purgeErr != nil {
		return 0, f.purgeErr
	}
	f.purges++
	return 2, nil
}

func (f *fakeMaintenance) MarkStalePendingEntries(_ context.Context, olderThan time.Time) (int64, error) {
	f.marks++
	f.lastCut = olderThan
	return 1, nil
}

func newTestScheduler(imp Importer, files BatchFiles, maint Maintenance) *Scheduler {
	return New(imp, files, maint, utils.NewTestLogger(), time.Hour, 14)
}

func TestRunOnce(t *testing.T) {
	imp := &fakeImporter{}
	files := &fakeFiles{objects: map[string][]byte{
		"cima-exports/a.csv": []byte("Email,Minutes\na@b.com,60\n"),
	}}
	maint := &fakeMaintenance{}

	s := newTestScheduler(imp, files, maint)
	s.RunOnce(context.Background())

	assert.Len(t, imp.payloads, 1)
	assert.Equal(t, []string{"cima-exports/a.csv"}, files.archived)
	assert.Equal(t, 1, maint.purges)
	assert.Equal(t, 1, maint.marks)
}

func TestRunOnceWithoutObjectStore(t *testing.T) {
	imp := &fakeImporter{}
	maint := &fakeMaintenance{}

	s := newTestScheduler(imp, nil, maint)
	s.RunOnce(context.Background())

	// Maintenance still runs with auto-import disabled
	assert.Empty(t, imp.payloads)
	assert.Equal(t, 1, maint.purges)
	assert.Equal(t, 1, maint.marks)
}

func TestRunOnceTaskIsolation(t *testing.T) {
	imp := &fakeImporter{}
	files := &fakeFiles{listErr: errors.New("bucket unreachable")}
	maint := &fakeMaintenance{purgeErr: errors.New("db down")}

	s := newTestScheduler(imp, files, maint)
	s.RunOnce(context.Background())

	// Both failures were contained; the last task still ran
	assert.Equal(t, 1, maint.marks)
}

func TestRunOnceFailedFileStaysInbound(t *testing.T) {
	imp := &fakeImporter{err: errors.New("unparseable")}
	files := &fakeFiles{objects: map[string][]byte{
		"cima-exports/bad.csv": []byte("not a csv"),
	}}
	maint := &fakeMaintenance{}

	s := newTestScheduler(imp, files, maint)
	s.RunOnce(context.Background())

	assert.Empty(t, files.archived)
}

func TestStaleCutoff(t *testing.T) {
	maint := &fakeMaintenance{}
	s := newTestScheduler(&fakeImporter{}, nil, maint)

	before := time.Now().UTC().Add(-s.StaleAge)
	s.RunOnce(context.Background())
	after := time.Now().UTC().Add(-s.StaleAge)

	assert.False(t, maint.lastCut.Before(before))
	assert.False(t, maint.lastCut.After(after))
}

func TestStartStop(t *testing.T) {
	maint := &fakeMaintenance{}
	s := newTestScheduler(&fakeImporter{}, nil, maint)
	s.Interval = 10 * time.Millisecond

	s.Start()
	time.Sleep(35 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, maint.purges, 1)

	// Stop is idempotent
	s.Stop()
}

func TestRestartAfterStop(t *testing.T) {
	maint := &fakeMaintenance{}
	s := newTestScheduler(&fakeImporter{}, nil, maint)
	s.Interval = 10 * time.Millisecond

	s.Start()
	time.Sleep(25 * time.Millisecond)
	s.Stop()

	firstCycle := maint.purges
	assert.GreaterOrEqual(t, firstCycle, 1)

	// A second cycle keeps ticking instead of exiting immediately
	s.Start()
	time.Sleep(25 * time.Millisecond)
	s.Stop()

	assert.Greater(t, maint.purges, firstCycle)
}
