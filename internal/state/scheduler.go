package state

import (
	"context"
	"sync"
	"time"

	"github.com/roylee0704/gron"

	"tokcache/internal/models"
	"tokcache/internal/providers"
	"tokcache/internal/state/interfaces"
	"tokcache/internal/structures"
)

const countTimeout = 10 * time.Second

// RecordCounter is the part of the record store the scheduler samples for
// the cached_records gauge.
type RecordCounter interface {
	CountRecords(ctx context.Context, kind models.ScopeKind) (int, error)
}

type Scheduler struct {
	config      *structures.Config
	logger      providers.Logger
	metrics     providers.MetricsProviderInterface
	counter     RecordCounter
	fileManager *FileManager
	cron        *gron.Cron
	opsMu       sync.Mutex
}

func (s *Scheduler) fileBacked() bool {
	return s.config.Sync.StateBackend == structures.StateBackendFile
}

func (s *Scheduler) Init() {
	s.cron = gron.New()
	interval := s.config.Persistence.SaveInterval

	if s.fileBacked() {
		s.cron.AddFunc(gron.Every(interval), func() {
			if err := s.Persist(); err == nil {
				s.logger.Debugf(providers.TypeApp, "Persisted fetch state to file %s", s.config.Persistence.FilePath)
			}
		})
	}

	s.cron.AddFunc(gron.Every(interval), s.refreshGauges)

	s.cron.Start()
}

func (s *Scheduler) refreshGauges() {
	ctx, cancel := context.WithTimeout(context.Background(), countTimeout)
	defer cancel()

	for _, kind := range []models.ScopeKind{models.ScopeAccount, models.ScopeHashtag} {
		n, err := s.counter.CountRecords(ctx, kind)
		if err != nil {
			s.logger.Warnf(providers.TypeApp, "Unable to count %s records: %s", kind, err)
			continue
		}
		s.metrics.SetCachedRecords(string(kind), n)
	}
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Scheduler) Restore() error {
	if !s.fileBacked() {
		return nil
	}
	return s.fileManager.LoadFromFile(s.config.Persistence.FilePath)
}

func (s *Scheduler) Persist() error {
	if !s.fileBacked() {
		return nil
	}

	s.opsMu.Lock()
	defer s.opsMu.Unlock()

	start := time.Now()
	err := s.fileManager.SaveToFile(s.config.Persistence.FilePath)
	s.metrics.ObservePersistenceDuration(time.Since(start))
	if err != nil {
		s.logger.Errorf(providers.TypeApp, "Error while persisting fetch state: %s", err)
		return err
	}
	return nil
}

func NewScheduler(config *structures.Config, logger providers.Logger, counter RecordCounter, fileManager *FileManager, metrics providers.MetricsProviderInterface) interfaces.SchedulerInterface {
	return &Scheduler{
		config:      config,
		logger:      logger,
		metrics:     metrics,
		counter:     counter,
		fileManager: fileManager,
	}
}
