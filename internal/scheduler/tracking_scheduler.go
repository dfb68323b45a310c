package scheduler

import (
	"context"
	"sync"

	"github.com/ikkim/storefront-backend/internal/app/service"
	"github.com/ikkim/storefront-backend/pkg/logger"
	"github.com/robfig/cron/v3"
)

// TrackingPoller is the slice of ShipmentService the scheduler drives.
type TrackingPoller interface {
	PollTracking(ctx context.Context, batchSize int) (*service.TrackingSummary, error)
}

// TrackingScheduler periodically refreshes in-flight shipments.
type TrackingScheduler struct {
	cron      *cron.Cron
	poller    TrackingPoller
	spec      string
	batchSize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTrackingScheduler(poller TrackingPoller, spec string, batchSize int) *TrackingScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &TrackingScheduler{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		poller:    poller,
		spec:      spec,
		batchSize: batchSize,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start registers the tracking job and starts the cron runner.
func (s *TrackingScheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.RunOnce()
	})
	if err != nil {
		logger.Error("Failed to add cron job for shipment tracking", err, map[string]interface{}{
			"spec": s.spec,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Tracking scheduler started", map[string]interface{}{
		"spec":       s.spec,
		"batch_size": s.batchSize,
	})
	return nil
}

// RunOnce polls one batch of shipments. Scheduled runs never overlap.
func (s *TrackingScheduler) RunOnce() *service.TrackingSummary {
	s.wg.Add(1)
	defer s.wg.Done()

	logger.Info("Starting scheduled shipment tracking", nil)
	summary, err := s.poller.PollTracking(s.ctx, s.batchSize)
	if err != nil {
		logger.Error("Shipment tracking run failed", err)
		return nil
	}

	logger.Info("Shipment tracking run finished", map[string]interface{}{
		"checked":  summary.Checked,
		"advanced": summary.Advanced,
		"failed":   summary.Failed,
		"created":  summary.Created,
	})
	return summary
}

// Stop cancels and awaits in-flight runs.
func (s *TrackingScheduler) Stop() {
	logger.Info("Stopping tracking scheduler...", nil)
	stopCtx := s.cron.Stop()
	s.cancel()
	<-stopCtx.Done()
	s.wg.Wait()
	logger.Info("Tracking scheduler stopped", nil)
}
