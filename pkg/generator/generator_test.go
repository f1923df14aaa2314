package generator

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/arraystore"
	"github.com/Ramsey-B/clover/pkg/datasets"
	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/loader"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/rawstore"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/writer"
)

type fakeCatalog struct {
	created   []string
	completed map[string]models.GenerationResult
	failed    map[string]error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{completed: map[string]models.GenerationResult{}, failed: map[string]error{}}
}

func (c *fakeCatalog) Create(_ context.Context, generation *models.Generation) (*models.Generation, error) {
	c.created = append(c.created, generation.ID)
	return generation, nil
}

func (c *fakeCatalog) Complete(_ context.Context, id string, result models.GenerationResult) error {
	c.completed[id] = result
	return nil
}

func (c *fakeCatalog) Fail(_ context.Context, id string, cause error) error {
	c.failed[id] = cause
	return nil
}

type recordingPublisher struct {
	events []*events.DatasetEvent
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, value any, _ map[string]string) error {
	p.events = append(p.events, value.(*events.DatasetEvent))
	return nil
}

type harness struct {
	generator *Generator
	raw       *rawstore.Store
	source    string
	output    string
	catalog   *fakeCatalog
	publisher *recordingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := logging.Discard()

	registry := datasets.NewRegistry()
	require.NoError(t, datasets.LoadBuiltin(registry))

	source := t.TempDir()
	output := t.TempDir()
	raw := rawstore.NewStore(t.TempDir(), rawstore.NewImporter(rawstore.ImporterConfig{SourceFolder: source}, logger), logger)

	catalog := newFakeCatalog()
	publisher := &recordingPublisher{}

	g := NewGenerator(Dependencies{
		Registry:   registry,
		Loader:     loader.NewLoader(loader.FromStore(raw), logger),
		Reconciler: reconcile.NewReconciler(logger),
		Writer:     writer.NewWriter(writer.NewStorage(output), logger),
		Catalog:    catalog,
		Emitter:    events.NewEmitter(publisher, logger),
		Logger:     logger,
	})

	return &harness{generator: g, raw: raw, source: source, output: output, catalog: catalog, publisher: publisher}
}

func (h *harness) writeSource(t *testing.T, year string, person, household string) {
	t.Helper()
	dir := filepath.Join(h.source, "acs", year)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "person.csv"), []byte(person), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "household.csv"), []byte(household), 0o644))
}

const personHeader = "SERIALNO,SPORDER,PWGTP,SPM_ID,SPM_RESOURCES,SPM_POVTHRESHOLD\n"
const householdHeader = "SERIALNO,WGTP,VEH\n"

func readArray(t *testing.T, path, name string) []int64 {
	t.Helper()
	file, err := arraystore.Open(context.Background(), path)
	require.NoError(t, err)
	defer file.Close()

	values, err := file.Int64s(context.Background(), name)
	require.NoError(t, err)
	return values
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	// household HU03 has no persons and must not survive
	h.writeSource(t, "2019",
		personHeader+
			"HU01,1,10,100,50000,26000\n"+
			"HU01,2,11,100,50000,26000\n"+
			"HU02,1,12,200,20000,13000\n",
		householdHeader+
			"HU01,30,2\n"+
			"HU02,40,1\n"+
			"HU03,50,0\n")

	report, err := h.generator.Generate(ctx, "acs", 2019)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(h.output, "acs_2019.db"), report.OutputPath)
	assert.False(t, report.Replaced)
	assert.Equal(t, 3, report.Counts[models.EntityPerson])
	assert.Equal(t, 2, report.Counts[models.EntityHousehold])
	assert.Equal(t, 2, report.Counts[models.EntitySPMUnit])
	assert.Equal(t, 1, report.Dropped[models.EntityHousehold])
	assert.Equal(t, 0, report.Dropped[models.EntityPerson])

	assert.Equal(t, []int64{1, 2, 101}, readArray(t, report.OutputPath, "person_id"))
	assert.Equal(t, []int64{0, 1}, readArray(t, report.OutputPath, "household_id"))
	assert.Equal(t, []int64{0, 0, 1}, readArray(t, report.OutputPath, "person_household_id"))
	assert.Equal(t, []int64{100, 200}, readArray(t, report.OutputPath, "tax_unit_id"))

	file, err := arraystore.Open(ctx, report.OutputPath)
	require.NoError(t, err)
	weights, err := file.Float64s(ctx, "household_weight")
	require.NoError(t, err)
	assert.Equal(t, []float64{30, 40}, weights)
	poverty, err := file.Float64s(ctx, "poverty_threshold")
	require.NoError(t, err)
	assert.Equal(t, []float64{26000, 13000}, poverty)
	require.NoError(t, file.Close())

	require.Len(t, h.catalog.created, 1)
	assert.Equal(t, 3, h.catalog.completed[report.RunID].PersonCount)
	assert.Equal(t, 1, h.catalog.completed[report.RunID].DroppedHouseholdCount)

	require.Len(t, h.publisher.events, 1)
	assert.Equal(t, events.EventGenerated, h.publisher.events[0].EventType)
	assert.Equal(t, 1, h.publisher.events[0].Dropped["household"])

	years, err := h.generator.Years("acs")
	require.NoError(t, err)
	assert.Equal(t, []int{2019}, years)
}

func TestGenerateIsDeterministic(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.writeSource(t, "2019",
		personHeader+"B,2,1,7,1,1\nA,1,1,8,1,1\nB,1,1,7,1,1\n",
		householdHeader+"A,1,0\nB,1,0\n")

	first, err := h.generator.Generate(ctx, "acs", 2019)
	require.NoError(t, err)
	firstIDs := readArray(t, first.OutputPath, "person_id")

	second, err := h.generator.Generate(ctx, "acs", 2019)
	require.NoError(t, err)
	assert.True(t, second.Replaced)
	assert.Equal(t, firstIDs, readArray(t, second.OutputPath, "person_id"))
	assert.Equal(t, []int64{102, 1, 101}, firstIDs)
}

func TestGenerateFullReplace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.writeSource(t, "2019",
		personHeader+"HU01,1,10,100,1,1\nHU02,1,10,200,1,1\n",
		householdHeader+"HU01,30,2\nHU02,40,1\n")
	_, err := h.generator.Generate(ctx, "acs", 2019)
	require.NoError(t, err)

	// new raw input for the same year: HU02 is gone
	require.NoError(t, h.raw.Remove("acs", 2019))
	h.writeSource(t, "2019",
		personHeader+"HU01,1,10,100,1,1\n",
		householdHeader+"HU01,35,2\n")

	report, err := h.generator.Generate(ctx, "acs", 2019)
	require.NoError(t, err)
	assert.True(t, report.Replaced)
	assert.Equal(t, []int64{0}, readArray(t, report.OutputPath, "household_id"))
	assert.Equal(t, []int64{1}, readArray(t, report.OutputPath, "person_id"))
}

func TestGenerateKeepsLongSerialsDistinct(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.writeSource(t, "2019",
		personHeader+
			"12345678901234567890,1,10,100,1,1\n"+
			"12345678901234567891,1,10,200,1,1\n",
		householdHeader+
			"12345678901234567890,30,1\n"+
			"12345678901234567891,40,1\n")

	report, err := h.generator.Generate(ctx, "acs", 2019)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Dropped[models.EntityHousehold])
	assert.Equal(t, 0, report.Dropped[models.EntityPerson])

	assert.Equal(t, []int64{0, 1}, readArray(t, report.OutputPath, "household_id"))
	assert.Equal(t, []int64{0, 1}, readArray(t, report.OutputPath, "person_household_id"))
	assert.Equal(t, []int64{1, 101}, readArray(t, report.OutputPath, "person_id"))
}

func TestGenerateFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown dataset", func(t *testing.T) {
		_, err := newHarness(t).generator.Generate(ctx, "sipp", 2019)
		assert.True(t, errors.IsKind(err, errors.KindNotFound))
	})

	t.Run("missing upstream year leaves nothing behind", func(t *testing.T) {
		h := newHarness(t)
		h.writeSource(t, "2018", personHeader+"HU01,1,1,1,1,1\n", householdHeader+"HU01,1,1\n")

		_, err := h.generator.Generate(ctx, "acs", 2019)
		assert.True(t, errors.IsKind(err, errors.KindMissingUpstream))
		assert.False(t, h.raw.Has("acs", 2019))
		assert.Len(t, h.catalog.failed, 1)
		require.Len(t, h.publisher.events, 1)
		assert.Equal(t, events.EventFailed, h.publisher.events[0].EventType)
	})

	t.Run("referential defect removes stale output", func(t *testing.T) {
		h := newHarness(t)
		h.writeSource(t, "2019", personHeader+"HU01,1,1,1,1,1\n", householdHeader+"HU01,1,1\n")
		_, err := h.generator.Generate(ctx, "acs", 2019)
		require.NoError(t, err)

		require.NoError(t, h.raw.Remove("acs", 2019))
		h.writeSource(t, "2019", personHeader+"HU01,1,1,1,1,1\nHU09,1,1,1,1,1\n", householdHeader+"HU01,1,1\n")

		_, err = h.generator.Generate(ctx, "acs", 2019)
		assert.True(t, errors.IsKind(err, errors.KindReferentialDefect))

		_, statErr := os.Stat(filepath.Join(h.output, "acs_2019.db"))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("schema drift writes nothing", func(t *testing.T) {
		h := newHarness(t)
		h.writeSource(t, "2019",
			"SERIALNO,SPORDER,PWGTP,SPM_ID,SPM_RESOURCES\nHU01,1,1,1,1\n",
			householdHeader+"HU01,1,1\n")

		_, err := h.generator.Generate(ctx, "acs", 2019)
		assert.True(t, errors.IsKind(err, errors.KindSchemaDrift))
		assert.Contains(t, err.Error(), "SPM_POVTHRESHOLD")

		entries, readErr := os.ReadDir(h.output)
		require.NoError(t, readErr)
		assert.Empty(t, entries)
	})
}

func TestGenerateConflict(t *testing.T) {
	h := newHarness(t)
	locker := NewLocalLocker()
	h.generator.locker = locker

	unlock, err := locker.Lock(context.Background(), lockKey("acs", 2019))
	require.NoError(t, err)

	_, err = h.generator.Generate(context.Background(), "acs", 2019)
	assert.True(t, errors.IsKind(err, errors.KindConflict))

	err = h.generator.Remove(context.Background(), "acs", 2019)
	assert.True(t, errors.IsKind(err, errors.KindConflict))

	require.NoError(t, unlock(context.Background()))
	_, err = locker.Lock(context.Background(), lockKey("acs", 2019))
	assert.NoError(t, err)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.writeSource(t, "2019", personHeader+"HU01,1,1,1,1,1\n", householdHeader+"HU01,1,1\n")

	_, err := h.generator.Generate(ctx, "acs", 2019)
	require.NoError(t, err)

	require.NoError(t, h.generator.Remove(ctx, "acs", 2019))
	years, err := h.generator.Years("acs")
	require.NoError(t, err)
	assert.Empty(t, years)

	err = h.generator.Remove(ctx, "acs", 2019)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	_, err = h.generator.Years("sipp")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	last := h.publisher.events[len(h.publisher.events)-1]
	assert.Equal(t, events.EventRemoved, last.EventType)
}

func TestLocalLocker(t *testing.T) {
	locker := NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)

	_, err = locker.Lock(context.Background(), "b")
	require.NoError(t, err)

	_, err = locker.Lock(context.Background(), "a")
	var pipelineErr *errors.PipelineError
	require.True(t, stderrors.As(err, &pipelineErr))
	assert.Equal(t, errors.KindConflict, pipelineErr.Kind)

	require.NoError(t, unlock(context.Background()))
	_, err = locker.Lock(context.Background(), "a")
	assert.NoError(t, err)
}

type fakeLock struct {
	mu       sync.Mutex
	extended int
	released bool
	lost     bool
}

func (l *fakeLock) Extend(context.Context, time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lost || l.released {
		return redis.ErrLockNotHeld
	}
	l.extended++
	return nil
}

func (l *fakeLock) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
	return nil
}

func (l *fakeLock) extensions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.extended
}

func TestHoldLockExtendsUntilReleased(t *testing.T) {
	lock := &fakeLock{}
	unlock := holdLock(context.Background(), lock, "generate:acs:2019", 30*time.Millisecond, logging.Discard())

	assert.Eventually(t, func() bool { return lock.extensions() >= 3 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, unlock(context.Background()))
	assert.True(t, lock.released)

	extended := lock.extensions()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, extended, lock.extensions())

	require.NoError(t, unlock(context.Background()))
}

func TestHoldLockStopsWhenLost(t *testing.T) {
	lock := &fakeLock{lost: true}
	unlock := holdLock(context.Background(), lock, "generate:acs:2019", 3*time.Millisecond, logging.Discard())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, lock.extensions())
	require.NoError(t, unlock(context.Background()))
}
