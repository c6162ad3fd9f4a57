// Package checker verifies that backups and destinations are fresh according
// to their schedules. Checks are purely observational: nothing is written,
// and every failure is logged with its reason before the aggregate verdict is
// returned.
package checker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backup/internal/config"
	"github.com/edvin/backup/internal/multicopy"
	"github.com/edvin/backup/internal/schedule"
)

// s3LatestFunc finds the newest archive object of an S3 destination.
// Indirection so tests can run without a bucket.
type s3LatestFunc func(ctx context.Context, dest *config.Destination, namePrefix string) (time.Time, bool, error)

// CheckProcessor verifies one backup configuration.
type CheckProcessor struct {
	logger   zerolog.Logger
	cfg      *config.Backup
	checks   map[string]func(obj config.CheckObject) bool
	s3Latest s3LatestFunc
	now      func() time.Time
}

// New creates a check processor for the given configuration.
func New(logger zerolog.Logger, cfg *config.Backup) *CheckProcessor {
	c := &CheckProcessor{
		logger: logger.With().Str("component", "checker").Str("backup", cfg.Name).Logger(),
		cfg:    cfg,
		now:    time.Now,
	}
	c.s3Latest = c.latestS3Archive
	c.checks = map[string]func(config.CheckObject) bool{
		config.TypeRecentFileExists: c.checkRecentFileExistsObject,
		config.TypeCompareFileToSrc: c.checkCompareFileToSrc,
	}
	return c
}

// Check reports whether every destination or check object of the
// configuration is fresh. All entries are evaluated even after the first
// failure, so every stale destination shows up in the log.
func (c *CheckProcessor) Check(ctx context.Context) (bool, error) {
	c.logger.Info().Msg("checking backup")

	switch c.cfg.BackupType {
	case config.TypeArchive:
		return c.checkArchive(ctx), nil
	case config.TypeChecker:
		return c.checkObjects()
	default:
		return false, fmt.Errorf("unsupported backup type %q", c.cfg.BackupType)
	}
}

// checkArchive verifies that every destination holds a fresh enough
// {name}*.zip archive.
func (c *CheckProcessor) checkArchive(ctx context.Context) bool {
	ok := true
	for _, d := range c.cfg.Destinations {
		if !c.checkDestination(ctx, d) {
			ok = false
		}
	}
	if ok {
		c.logger.Info().Int("destinations", len(c.cfg.Destinations)).Msg("all destinations up to date")
	}
	return ok
}

func (c *CheckProcessor) checkDestination(ctx context.Context, d *config.Destination) bool {
	if d.S3 != nil {
		latest, found, err := c.s3Latest(ctx, d, c.cfg.Name)
		if err != nil {
			c.logger.Error().Err(err).Str("destination", d.Name).Msg("could not list S3 destination")
			return false
		}
		if !found {
			c.logger.Error().Str("destination", d.Name).Msg("no backup archive found")
			return false
		}
		return c.freshEnough(d.Name, latest, d.Schedule)
	}

	pattern := filepath.Join(d.Folder, c.cfg.Name+"*.zip")
	latest, found := latestMatch(pattern)
	if !found {
		c.logger.Error().Str("destination", d.Name).Str("pattern", pattern).Msg("no backup file found")
		return false
	}
	return c.freshEnough(d.Name, latest, d.Schedule)
}

func (c *CheckProcessor) latestS3Archive(ctx context.Context, d *config.Destination, namePrefix string) (time.Time, bool, error) {
	client := multicopy.NewS3Client(d.S3.Region, d.S3.Endpoint, d.S3.AccessKey, d.S3.SecretKey)
	return multicopy.LatestModified(ctx, client, d.S3.Bucket, d.S3.Prefix, namePrefix, ".zip")
}

// freshEnough compares the evidence time against the schedule's most recent
// trigger, relaxed by the accuracy tolerance.
func (c *CheckProcessor) freshEnough(name string, evidence time.Time, scheduleExpr string) bool {
	min, err := schedule.MinAcceptable(scheduleExpr, c.now(), c.cfg.CheckerAccuracyDays)
	if err != nil {
		c.logger.Error().Err(err).Str("target", name).Msg("invalid schedule")
		return false
	}
	if min.IsZero() {
		return true
	}
	if evidence.Before(min) {
		c.logger.Error().
			Str("target", name).
			Time("found_at", evidence).
			Time("required_at", min).
			Msg("backup out of date")
		return false
	}
	return true
}

// checkObjects verifies every declared check object through the dispatch
// table.
func (c *CheckProcessor) checkObjects() (bool, error) {
	ok := true
	for _, obj := range c.cfg.CheckObjects {
		check, found := c.checks[obj.ObjectType()]
		if !found {
			return false, fmt.Errorf("no check registered for object type %q", obj.ObjectType())
		}
		if !check(obj) {
			ok = false
		}
	}
	if ok {
		c.logger.Info().Int("objects", len(c.cfg.CheckObjects)).Msg("all objects up to date")
	}
	return ok, nil
}

func (c *CheckProcessor) checkRecentFileExistsObject(obj config.CheckObject) bool {
	o := obj.(*config.RecentFileExistsObject)

	pattern := filepath.Join(o.BackupFolder, o.BackupFileNamePattern)
	latest, found := latestMatch(pattern)
	if !found {
		c.logger.Error().Str("pattern", pattern).Msg("no backup file found")
		return false
	}
	return c.freshEnough(pattern, latest, o.Schedule)
}

func (c *CheckProcessor) checkCompareFileToSrc(obj config.CheckObject) bool {
	o := obj.(*config.CompareFileToSrcObject)

	backupInfo, err := os.Stat(o.BackupFile)
	if err != nil {
		c.logger.Error().Str("file", o.BackupFile).Msg("backup file does not exist")
		return false
	}
	srcInfo, err := os.Stat(o.SrcFile)
	if err != nil {
		c.logger.Error().Str("file", o.SrcFile).Msg("source file does not exist")
		return false
	}

	min, err := schedule.MinAcceptable(o.Schedule, c.now(), c.cfg.CheckerAccuracyDays)
	if err != nil {
		c.logger.Error().Err(err).Str("file", o.BackupFile).Msg("invalid schedule")
		return false
	}

	// The weaker of the schedule boundary and the source's own modification
	// time: an unchanged source does not demand a fresh backup, a recently
	// edited one does.
	if srcInfo.ModTime().Before(min) || min.IsZero() {
		min = srcInfo.ModTime()
	}

	if backupInfo.ModTime().Before(min) {
		c.logger.Error().
			Str("file", o.BackupFile).
			Time("found_at", backupInfo.ModTime()).
			Time("required_at", min).
			Msg("backup out of date")
		return false
	}
	return true
}

// latestMatch returns the newest modification time among files matching the
// glob pattern.
func latestMatch(pattern string) (time.Time, bool) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return time.Time{}, false
	}

	var latest time.Time
	found := false
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
			found = true
		}
	}
	return latest, found
}
