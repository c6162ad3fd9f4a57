// Package processor orchestrates one backup configuration: due-destination
// evaluation, staging-folder rotation, work-object execution, archiving and
// replication with retention.
package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backup/internal/archive"
	"github.com/edvin/backup/internal/config"
	"github.com/edvin/backup/internal/multicopy"
	"github.com/edvin/backup/internal/schedule"
	"github.com/edvin/backup/internal/status"
)

const (
	stagingFolderName  = "last_backup"
	previousFolderName = "prev_backup"
	archiveFileName    = "last_backup.zip"
)

// replicateS3Func uploads the archive to an S3 destination. Indirection so
// tests can run without a bucket.
type replicateS3Func func(ctx context.Context, src string, dest *config.Destination, opts multicopy.Options) error

// BackupProcessor runs one archive-type backup configuration to completion.
type BackupProcessor struct {
	logger      zerolog.Logger
	cfg         *config.Backup
	registry    *Registry
	copier      *multicopy.Copier
	replicateS3 replicateS3Func
	now         func() time.Time
}

// New creates a processor for the given configuration.
func New(logger zerolog.Logger, cfg *config.Backup, registry *Registry) *BackupProcessor {
	p := &BackupProcessor{
		logger:   logger.With().Str("component", "backup").Str("backup", cfg.Name).Logger(),
		cfg:      cfg,
		registry: registry,
		copier:   multicopy.New(logger),
		now:      time.Now,
	}
	p.replicateS3 = p.replicateToS3
	return p
}

// Process runs the configuration end to end and returns the number of
// destinations updated; 0 means every destination was up to date. Statuses
// checkpointed as not_finished stay that way when a later step fails, which
// is how an interrupted run is detected afterwards.
func (p *BackupProcessor) Process(ctx context.Context) (int, error) {
	if p.cfg.BackupType != config.TypeArchive {
		return 0, fmt.Errorf("configuration %q is not an archive backup", p.cfg.Name)
	}

	now := p.now()
	p.logger.Info().Msg("processing backup")

	if err := os.MkdirAll(p.cfg.DataFolder, 0o750); err != nil {
		return 0, fmt.Errorf("create data folder: %w", err)
	}
	st, err := status.Load(p.cfg.DataFolder, p.cfg.Name)
	if err != nil {
		return 0, err
	}

	due, err := p.dueDestinations(st, now)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		p.logger.Info().Msg("backup skipped, all destinations up to date")
		return 0, nil
	}

	// Durability checkpoint: persist the attempt before any risky work.
	for _, d := range due {
		ds := st.GetOrCreate(d.Name)
		ds.LastBackupAttemptTime = now
		ds.LastBackupResult = status.ResultNotFinished
	}
	if err := st.Save(); err != nil {
		return 0, err
	}

	stagingDir, archiveFile, err := p.prepareFolders()
	if err != nil {
		return 0, err
	}

	p.logger.Info().Int("objects", len(p.cfg.BackupObjects)).Msg("processing objects")
	for _, obj := range p.cfg.BackupObjects {
		if err := p.registry.Run(ctx, obj, stagingDir); err != nil {
			return 0, fmt.Errorf("backup object %s: %w", obj.ObjectType(), err)
		}
	}

	p.logger.Info().Str("archive", archiveFile).Msg("creating archive")
	if err := archive.Create(stagingDir, archiveFile); err != nil {
		return 0, err
	}

	p.logger.Info().Int("destinations", len(due)).Msg("copying archive to destinations")
	for _, d := range due {
		if err := p.replicate(ctx, archiveFile, d); err != nil {
			return 0, fmt.Errorf("replicate to destination %q: %w", d.Name, err)
		}
		ds := st.GetOrCreate(d.Name)
		// Every destination of one run shares the backup start time.
		ds.LastSuccessfulBackupTime = now
		ds.LastBackupResult = status.ResultSucceeded
	}

	if err := st.Save(); err != nil {
		return 0, err
	}

	p.logger.Info().Int("updated", len(due)).Msg("backup complete")
	return len(due), nil
}

func (p *BackupProcessor) dueDestinations(st *status.BackupStatus, now time.Time) ([]*config.Destination, error) {
	var due []*config.Destination
	for _, d := range p.cfg.Destinations {
		ds := st.GetOrCreate(d.Name)
		ok, err := schedule.IsDue(d.Schedule, now, ds.LastSuccessfulBackupTime)
		if err != nil {
			return nil, fmt.Errorf("destination %q: %w", d.Name, err)
		}
		if ok {
			due = append(due, d)
		}
	}
	return due, nil
}

// prepareFolders rotates the staging folders: the previous snapshot is
// dropped, the last snapshot becomes the previous one, and a fresh empty
// staging folder is created. A missing staging folder counts as nothing
// staged yet; nothing is reconstructed from the previous snapshot.
func (p *BackupProcessor) prepareFolders() (stagingDir, archiveFile string, err error) {
	archiveFile = filepath.Join(p.cfg.DataFolder, archiveFileName)
	if err := os.Remove(archiveFile); err != nil && !os.IsNotExist(err) {
		return "", "", fmt.Errorf("remove stale archive: %w", err)
	}

	prevDir := filepath.Join(p.cfg.DataFolder, previousFolderName)
	if err := os.RemoveAll(prevDir); err != nil {
		return "", "", fmt.Errorf("remove previous backup folder: %w", err)
	}

	stagingDir = filepath.Join(p.cfg.DataFolder, stagingFolderName)
	if _, statErr := os.Stat(stagingDir); statErr == nil {
		if err := os.Rename(stagingDir, prevDir); err != nil {
			return "", "", fmt.Errorf("rotate last backup folder: %w", err)
		}
	}
	if err := os.Mkdir(stagingDir, 0o750); err != nil {
		return "", "", fmt.Errorf("create staging folder: %w", err)
	}

	return stagingDir, archiveFile, nil
}

func (p *BackupProcessor) replicate(ctx context.Context, archiveFile string, dest *config.Destination) error {
	opts := multicopy.Options{
		NumCopies:      dest.NumCopies,
		TargetBaseName: p.cfg.Name,
		AppendTime:     true,
	}

	if dest.S3 != nil {
		return p.replicateS3(ctx, archiveFile, dest, opts)
	}

	if err := os.MkdirAll(dest.Folder, 0o755); err != nil {
		return fmt.Errorf("create destination folder: %w", err)
	}
	return p.copier.Replicate(archiveFile, dest.Folder, opts)
}

func (p *BackupProcessor) replicateToS3(ctx context.Context, archiveFile string, dest *config.Destination, opts multicopy.Options) error {
	client := multicopy.NewS3Client(dest.S3.Region, dest.S3.Endpoint, dest.S3.AccessKey, dest.S3.SecretKey)
	copier := multicopy.NewS3Copier(p.logger, client, dest.S3.Bucket, dest.S3.Prefix)
	return copier.Replicate(ctx, archiveFile, opts)
}
