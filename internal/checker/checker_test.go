package checker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/backup/internal/config"
)

// Fixed reference time for every test: schedule "0 2 * * *" with the default
// two-day tolerance makes 2026-08-26 02:00 the oldest acceptable evidence.
var testNow = time.Date(2026, 8, 28, 13, 5, 0, 0, time.UTC)

func writeFileAt(t *testing.T, path string, modTime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

func newTestChecker(cfg *config.Backup) *CheckProcessor {
	if cfg.CheckerAccuracyDays == 0 {
		cfg.CheckerAccuracyDays = config.DefaultCheckerAccuracyDays
	}
	c := New(zerolog.Nop(), cfg)
	c.now = func() time.Time { return testNow }
	return c
}

func archiveConfig(destDir string) *config.Backup {
	return &config.Backup{
		Name:       "shop",
		BackupType: config.TypeArchive,
		Destinations: []*config.Destination{
			{Name: "daily", Folder: destDir, NumCopies: 3, Schedule: "0 2 * * *"},
		},
	}
}

// ---------- archive destinations ----------

func TestCheck_FreshArchivePasses(t *testing.T) {
	destDir := t.TempDir()
	writeFileAt(t, filepath.Join(destDir, "shop_2026-08-27.zip"), testNow.Add(-24*time.Hour))

	c := newTestChecker(archiveConfig(destDir))
	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheck_StaleArchiveFails(t *testing.T) {
	destDir := t.TempDir()
	writeFileAt(t, filepath.Join(destDir, "shop_2026-08-20.zip"), testNow.Add(-8*24*time.Hour))

	c := newTestChecker(archiveConfig(destDir))
	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheck_NoArchiveFound(t *testing.T) {
	c := newTestChecker(archiveConfig(t.TempDir()))
	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheck_NewestOfSeveralGenerationsCounts(t *testing.T) {
	destDir := t.TempDir()
	writeFileAt(t, filepath.Join(destDir, "shop_2026-08-10.zip"), testNow.Add(-18*24*time.Hour))
	writeFileAt(t, filepath.Join(destDir, "shop_2026-08-27.zip"), testNow.Add(-24*time.Hour))

	c := newTestChecker(archiveConfig(destDir))
	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheck_AllDestinationsEvaluated(t *testing.T) {
	fresh := t.TempDir()
	writeFileAt(t, filepath.Join(fresh, "shop_2026-08-27.zip"), testNow.Add(-24*time.Hour))

	cfg := archiveConfig(fresh)
	cfg.Destinations = append(cfg.Destinations, &config.Destination{
		Name: "weekly", Folder: t.TempDir(), NumCopies: 3, Schedule: "0 2 * * *",
	})

	c := newTestChecker(cfg)
	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

// ---------- S3 destinations ----------

func s3Config() *config.Backup {
	return &config.Backup{
		Name:       "shop",
		BackupType: config.TypeArchive,
		Destinations: []*config.Destination{
			{
				Name:      "offsite",
				S3:        &config.S3Destination{Bucket: "backups", Prefix: "www/"},
				NumCopies: 3,
				Schedule:  "0 2 * * *",
			},
		},
	}
}

func TestCheck_S3FreshArchivePasses(t *testing.T) {
	c := newTestChecker(s3Config())
	c.s3Latest = func(_ context.Context, _ *config.Destination, namePrefix string) (time.Time, bool, error) {
		assert.Equal(t, "shop", namePrefix)
		return testNow.Add(-24 * time.Hour), true, nil
	}

	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheck_S3NoArchiveFails(t *testing.T) {
	c := newTestChecker(s3Config())
	c.s3Latest = func(context.Context, *config.Destination, string) (time.Time, bool, error) {
		return time.Time{}, false, nil
	}

	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

// ---------- check objects ----------

func TestCheck_RecentFileExists(t *testing.T) {
	folder := t.TempDir()
	writeFileAt(t, filepath.Join(folder, "shop_2026-08-27.zip"), testNow.Add(-24*time.Hour))

	cfg := &config.Backup{
		Name:       "check",
		BackupType: config.TypeChecker,
		CheckObjects: []config.CheckObject{
			&config.RecentFileExistsObject{
				Schedule:              "0 2 * * *",
				BackupFolder:          folder,
				BackupFileNamePattern: "shop*.zip",
			},
		},
	}

	c := newTestChecker(cfg)
	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheck_RecentFileExists_NoMatch(t *testing.T) {
	cfg := &config.Backup{
		Name:       "check",
		BackupType: config.TypeChecker,
		CheckObjects: []config.CheckObject{
			&config.RecentFileExistsObject{
				Schedule:              "0 2 * * *",
				BackupFolder:          t.TempDir(),
				BackupFileNamePattern: "shop*.zip",
			},
		},
	}

	c := newTestChecker(cfg)
	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func compareConfig(backupFile, srcFile string) *config.Backup {
	return &config.Backup{
		Name:       "check",
		BackupType: config.TypeChecker,
		CheckObjects: []config.CheckObject{
			&config.CompareFileToSrcObject{
				Schedule:   "0 2 * * *",
				BackupFile: backupFile,
				SrcFile:    srcFile,
			},
		},
	}
}

func TestCheck_CompareFileToSrc_StaleBackupFails(t *testing.T) {
	tmp := t.TempDir()
	backup := filepath.Join(tmp, "fstab.bak")
	src := filepath.Join(tmp, "fstab")
	writeFileAt(t, backup, testNow.Add(-10*24*time.Hour))
	writeFileAt(t, src, testNow.Add(-time.Hour)) // recently edited source

	c := newTestChecker(compareConfig(backup, src))
	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheck_CompareFileToSrc_UnchangedSourcePasses(t *testing.T) {
	tmp := t.TempDir()
	backup := filepath.Join(tmp, "fstab.bak")
	src := filepath.Join(tmp, "fstab")
	// Both older than the schedule boundary, but the backup is no older than
	// the source, so nothing new was missed.
	writeFileAt(t, src, testNow.Add(-30*24*time.Hour))
	writeFileAt(t, backup, testNow.Add(-20*24*time.Hour))

	c := newTestChecker(compareConfig(backup, src))
	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheck_CompareFileToSrc_MissingBackupFails(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "fstab")
	writeFileAt(t, src, testNow.Add(-time.Hour))

	c := newTestChecker(compareConfig(filepath.Join(tmp, "absent"), src))
	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

// ---------- type guard ----------

func TestCheck_UnsupportedType(t *testing.T) {
	c := newTestChecker(&config.Backup{Name: "weird", BackupType: "mirror"})
	_, err := c.Check(context.Background())
	assert.ErrorContains(t, err, `unsupported backup type "mirror"`)
}
