// Package backup writes periodic workbook exports of the fleet data.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-tracker/internal/models"
	"github.com/ukydev/fleet-tracker/internal/workbook"
)

// Store is the fleet state the scheduler reads and stamps.
type Store interface {
	Get() models.FleetData
	Update(fn func(models.FleetData) models.FleetData) (models.FleetData, error)
}

// Scheduler exports the fleet to Dir on a cron schedule.
type Scheduler struct {
	store    Store
	dir      string
	schedule string
	cron     *cron.Cron
	logger   *log.Entry
	Now      func() time.Time
}

// NewScheduler returns a scheduler. An empty schedule disables the periodic
// job but RunOnce still works.
func NewScheduler(store Store, dir, schedule string, logger *log.Entry) *Scheduler {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Scheduler{
		store:    store,
		dir:      dir,
		schedule: schedule,
		logger:   logger.WithField("component", "backup"),
		Now:      time.Now,
	}
}

// FileName returns the backup file name for a run at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("fleet_backup_%s.xlsx", t.UTC().Format("20060102T150405Z"))
}

// RunOnce writes one backup and records its time as the fleet's LastBackup.
// It returns the path written.
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	now := s.Now()
	path := filepath.Join(s.dir, FileName(now))
	data := s.store.Get()
	if err := workbook.SaveExport(path, data); err != nil {
		return "", err
	}
	_, err := s.store.Update(func(d models.FleetData) models.FleetData {
		out := d.Clone()
		stamp := now.UTC()
		out.LastBackup = &stamp
		return out
	})
	if err != nil {
		return path, fmt.Errorf("record backup time: %w", err)
	}
	s.logger.WithFields(log.Fields{
		"path":     path,
		"vehicles": len(data.Motorcycles),
		"records":  len(data.ServiceRecords),
	}).Info("Backup written")
	return path, nil
}

// Start schedules the periodic backup.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("Backup schedule disabled")
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.WithError(err).Error("Scheduled backup failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.WithField("schedule", s.schedule).Info("Backup scheduler started")
	return nil
}

// Stop stops the schedule and waits for a running backup to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
