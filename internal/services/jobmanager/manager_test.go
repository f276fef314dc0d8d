package jobmanager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/interfaces"
	"github.com/bobmcallan/sitecast/internal/models"
	"github.com/bobmcallan/sitecast/internal/services/forecast"
	"github.com/bobmcallan/sitecast/internal/storage/sqlite"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type harness struct {
	jm       *JobManager
	forecast *forecast.Service
	storage  interfaces.StorageManager
}

func newHarness(t *testing.T, mutate func(*common.ForecastConfig)) *harness {
	t.Helper()
	logger := common.NewSilentLogger()
	mgr, err := sqlite.Open(logger, filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	cfg := common.NewDefaultConfig().Forecast
	cfg.Seed = 3
	cfg.Workers = 1
	if mutate != nil {
		mutate(&cfg)
	}

	svc := forecast.NewService(mgr, nil, cfg, logger)
	jm := NewJobManager(svc, mgr, logger, cfg)
	svc.SetDispatcher(jm)
	return &harness{jm: jm, forecast: svc, storage: mgr}
}

func (h *harness) seedPortfolio(t *testing.T, name string) int64 {
	t.Helper()
	ctx := context.Background()
	site := &models.Site{Name: name + " site", SiteType: models.SiteTypeSolar, Latitude: 12, Longitude: 34, CapacityMW: models.NumberPtr(5)}
	require.NoError(t, h.storage.SiteStore().Create(ctx, site))
	p := &models.Portfolio{Name: name}
	require.NoError(t, h.storage.PortfolioStore().Create(ctx, p))
	require.NoError(t, h.storage.PortfolioStore().AddSite(ctx, p.ID, site.ID))
	return p.ID
}

func (h *harness) waitForStatus(t *testing.T, jobID string, want models.JobStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := h.storage.ForecastStore().GetJob(context.Background(), jobID)
		return err == nil && job.Status == want
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached %s", jobID, want)
}

func TestJobManager_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	h := newHarness(t, nil)
	h.jm.Start()
	assert.NotNil(t, h.jm.cancel)

	// Restarting stops the previous loops first
	h.jm.Start()
	h.jm.Stop()
	assert.Nil(t, h.jm.cancel)

	err := h.jm.Enqueue(context.Background(), models.ForecastJob{ID: "late"})
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestJobManager_ProcessesTriggeredJob(t *testing.T) {
	h := newHarness(t, nil)
	h.jm.Start()
	defer h.jm.Stop()

	pid := h.seedPortfolio(t, "Worker")
	resp, err := h.forecast.Trigger(context.Background(), pid, nil)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, resp.Status)

	h.waitForStatus(t, resp.JobID, models.JobStatusCompleted)

	count, err := h.storage.ForecastStore().CountResults(context.Background(), models.ResultFilter{JobID: resp.JobID})
	require.NoError(t, err)
	assert.Equal(t, 24, count)
}

func TestJobManager_StartRecoversOrphanedJobs(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	pid := h.seedPortfolio(t, "Orphans")

	pending := &models.ForecastJob{PortfolioID: pid, ForecastHorizon: 2}
	require.NoError(t, h.storage.ForecastStore().CreateJob(ctx, pending))
	running := &models.ForecastJob{PortfolioID: pid, ForecastHorizon: 2}
	require.NoError(t, h.storage.ForecastStore().CreateJob(ctx, running))
	ok, err := h.storage.ForecastStore().TransitionJob(ctx, running.ID,
		[]models.JobStatus{models.JobStatusPending}, models.JobStatusRunning, "")
	require.NoError(t, err)
	require.True(t, ok)

	h.jm.Start()
	defer h.jm.Stop()

	h.waitForStatus(t, pending.ID, models.JobStatusCompleted)
	h.waitForStatus(t, running.ID, models.JobStatusCompleted)
}

func TestJobManager_QueueFull(t *testing.T) {
	h := newHarness(t, nil)
	// Not started, so nothing drains the queue
	h.jm.queue = make(chan string, 1)

	require.NoError(t, h.jm.Enqueue(context.Background(), models.ForecastJob{ID: "a"}))
	err := h.jm.Enqueue(context.Background(), models.ForecastJob{ID: "b"})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, h.jm.QueueLength())
}

func TestJobManager_RequeueSweepPicksUpDroppedJobs(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	pid := h.seedPortfolio(t, "Overflow")
	// Not started, so the test drains the queue by hand
	h.jm.queue = make(chan string, 1)

	first, err := h.forecast.Trigger(ctx, pid, nil)
	require.NoError(t, err)
	second, err := h.forecast.Trigger(ctx, pid, nil)
	require.NoError(t, err, "a full queue still accepts the trigger")
	assert.Equal(t, 1, h.jm.QueueLength())

	// The queued job is already known, so nothing is added
	assert.Zero(t, h.jm.requeuePending(ctx))

	id := <-h.jm.queue
	h.jm.dequeued(id)
	assert.Equal(t, first.JobID, id)
	_, err = h.forecast.ExecuteJob(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, 1, h.jm.requeuePending(ctx))
	assert.Equal(t, second.JobID, <-h.jm.queue)
	h.jm.dequeued(second.JobID)
	assert.Zero(t, h.jm.QueueLength())
}

func TestJobManager_SmallQueueCompletesEveryJob(t *testing.T) {
	h := newHarness(t, func(c *common.ForecastConfig) {
		c.QueueSize = 1
		c.RequeueInterval = "20ms"
		c.DefaultHorizon = 2
	})
	h.jm.Start()
	defer h.jm.Stop()

	pid := h.seedPortfolio(t, "Burst")
	var ids []string
	for i := 0; i < 5; i++ {
		resp, err := h.forecast.Trigger(context.Background(), pid, nil)
		require.NoError(t, err)
		ids = append(ids, resp.JobID)
	}

	for _, id := range ids {
		h.waitForStatus(t, id, models.JobStatusCompleted)
	}
}

func TestJobManager_PurgeOldJobs(t *testing.T) {
	h := newHarness(t, func(c *common.ForecastConfig) { c.RetentionDays = 30 })
	ctx := context.Background()
	pid := h.seedPortfolio(t, "Retention")

	old := time.Now().Add(-40 * 24 * time.Hour)
	job := &models.ForecastJob{PortfolioID: pid, CreatedAt: old}
	require.NoError(t, h.storage.ForecastStore().CreateJob(ctx, job))
	_, err := h.storage.ForecastStore().TransitionJob(ctx, job.ID,
		[]models.JobStatus{models.JobStatusPending}, models.JobStatusFailed, "boom")
	require.NoError(t, err)

	// completed_at is stamped now, so the job is still inside the window
	assert.Zero(t, h.jm.purgeOldJobs(ctx))

	_, err = h.storage.ForecastStore().GetJob(ctx, job.ID)
	assert.NoError(t, err)
}

func TestWebSocketHub_BroadcastNoClients(t *testing.T) {
	hub := NewJobWSHub(common.NewSilentLogger())
	go hub.Run()
	defer hub.Stop()

	hub.Broadcast(models.JobEvent{Type: models.JobEventQueued, Timestamp: time.Now()})
	assert.Zero(t, hub.ClientCount())
}

func TestWebSocketHub_StreamsJobEvents(t *testing.T) {
	h := newHarness(t, nil)
	h.jm.Start()
	defer h.jm.Stop()

	srv := httptest.NewServer(http.HandlerFunc(h.jm.Hub().ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.jm.Hub().ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	pid := h.seedPortfolio(t, "Streamed")
	resp, err := h.forecast.Trigger(context.Background(), pid, nil)
	require.NoError(t, err)

	seen := map[string]bool{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for !seen[models.JobEventCompleted] || !seen[models.JobEventQueued] {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var event models.JobEvent
		require.NoError(t, json.Unmarshal(data, &event))
		assert.Equal(t, resp.JobID, event.Job.ID)
		seen[event.Type] = true
	}
	assert.True(t, seen[models.JobEventStarted])
}
