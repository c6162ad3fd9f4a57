package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Backup configuration types.
const (
	TypeArchive = "archive"
	TypeChecker = "checker"
)

// DefaultCheckerAccuracyDays is the freshness tolerance applied by checkers
// when a configuration does not set checker_accuracy_days.
const DefaultCheckerAccuracyDays = 2

// DefaultDataFolderTemplate locates staging and status data when neither the
// app nor the backup configuration overrides data_folder.
const DefaultDataFolderTemplate = "/var/lib/backup/{backup_name}"

var validate = validator.New()

// App is the root application configuration plus every backup configuration
// discovered through it.
type App struct {
	BackupConfigsFolders []string `yaml:"backup_configs_folders" validate:"required,min=1"`
	DataFolder           string   `yaml:"data_folder"`
	LogLevel             string   `yaml:"log_level"`

	// Dir is the directory holding the loaded config file. Relative
	// backup_configs_folders entries are resolved against it.
	Dir string `yaml:"-"`

	// Backups holds the discovered backup configurations in file-name order.
	Backups []*Backup `yaml:"-"`
}

// Destination is one replication target of an archive configuration. Exactly
// one of Folder and S3 is set.
type Destination struct {
	Name      string         `yaml:"name" validate:"required"`
	Folder    string         `yaml:"folder"`
	S3        *S3Destination `yaml:"s3"`
	NumCopies int            `yaml:"num_copies" validate:"required,min=1"`
	Schedule  string         `yaml:"schedule" validate:"required,cron"`
}

// S3Destination replicates archives into an S3 bucket instead of a local
// folder. An empty endpoint means plain AWS S3; a non-empty one is used with
// path-style addressing (Ceph RGW, MinIO and friends).
type S3Destination struct {
	Bucket    string `yaml:"bucket" validate:"required"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Backup is one backup or checker configuration. Immutable after load; the
// name is the configuration file's stem.
type Backup struct {
	Name                string
	BackupType          string
	DataFolder          string
	CheckerAccuracyDays int
	Destinations        []*Destination
	BackupObjects       []BackupObject // archive configurations
	CheckObjects        []CheckObject  // checker configurations
}

// rawBackup is the on-disk shape of a backup configuration file. Objects are
// kept as raw nodes until the type tag has been inspected.
type rawBackup struct {
	BackupType          string         `yaml:"backup_type"`
	DataFolder          string         `yaml:"data_folder"`
	CheckerAccuracyDays *int           `yaml:"checker_accuracy_days"`
	Destinations        []*Destination `yaml:"destinations"`
	Objects             []yaml.Node    `yaml:"objects"`
}

// LoadApp reads the root configuration file and every backup configuration
// file found in its backup_configs_folders.
func LoadApp(path string) (*App, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	app := &App{}
	if err := yaml.Unmarshal(data, app); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := validate.Struct(app); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	app.Dir = filepath.Dir(abs)

	template := app.DataFolder
	if template == "" {
		template = DefaultDataFolderTemplate
	}

	for _, folder := range app.BackupConfigsFolders {
		if !filepath.IsAbs(folder) {
			folder = filepath.Join(app.Dir, folder)
		}
		info, err := os.Stat(folder)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("backup configurations folder %q does not exist", folder)
		}

		matches, _ := filepath.Glob(filepath.Join(folder, "*.yaml"))
		sort.Strings(matches)
		for _, file := range matches {
			backup, err := LoadBackup(file, template)
			if err != nil {
				return nil, err
			}
			app.Backups = append(app.Backups, backup)
		}
	}

	return app, nil
}

// LoadBackup reads a single backup configuration file. The data folder
// template ({backup_name} substitution) applies unless the file sets its own
// data_folder.
func LoadBackup(path, dataFolderTemplate string) (*Backup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backup config: %w", err)
	}

	var raw rawBackup
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse backup config %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	b := &Backup{
		Name:                name,
		BackupType:          raw.BackupType,
		CheckerAccuracyDays: DefaultCheckerAccuracyDays,
		Destinations:        raw.Destinations,
	}

	if raw.BackupType != TypeArchive && raw.BackupType != TypeChecker {
		return nil, fmt.Errorf("unsupported backup type %q in %s", raw.BackupType, path)
	}

	if raw.CheckerAccuracyDays != nil {
		if *raw.CheckerAccuracyDays < 0 {
			return nil, fmt.Errorf("negative checker_accuracy_days in %s", path)
		}
		b.CheckerAccuracyDays = *raw.CheckerAccuracyDays
	}

	template := raw.DataFolder
	if template == "" {
		template = dataFolderTemplate
	}
	b.DataFolder = strings.ReplaceAll(template, "{backup_name}", name)

	if err := b.loadDestinations(path); err != nil {
		return nil, err
	}
	if err := b.loadObjects(path, raw.Objects); err != nil {
		return nil, err
	}

	switch b.BackupType {
	case TypeArchive:
		if len(b.Destinations) == 0 {
			return nil, fmt.Errorf("archive configuration %s declares no destinations", path)
		}
	case TypeChecker:
		if len(b.Destinations) > 0 {
			return nil, fmt.Errorf("checker configuration %s must not declare destinations", path)
		}
		if len(b.CheckObjects) == 0 {
			return nil, fmt.Errorf("checker configuration %s declares no check objects", path)
		}
	}

	return b, nil
}

func (b *Backup) loadDestinations(path string) error {
	seen := make(map[string]bool)
	for _, d := range b.Destinations {
		if err := validate.Struct(d); err != nil {
			return fmt.Errorf("invalid destination in %s: %w", path, err)
		}
		if (d.Folder == "") == (d.S3 == nil) {
			return fmt.Errorf("destination %q in %s must set exactly one of folder and s3", d.Name, path)
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate destination name %q in %s", d.Name, path)
		}
		seen[d.Name] = true
	}
	return nil
}

func (b *Backup) loadObjects(path string, nodes []yaml.Node) error {
	for i := range nodes {
		node := &nodes[i]

		var probe struct {
			Type string `yaml:"type"`
		}
		if err := node.Decode(&probe); err != nil {
			return fmt.Errorf("parse object %d in %s: %w", i, path, err)
		}

		switch b.BackupType {
		case TypeArchive:
			factory, ok := backupObjectTypes[probe.Type]
			if !ok {
				return fmt.Errorf("unknown backup object type %q in %s", probe.Type, path)
			}
			obj := factory()
			if err := node.Decode(obj); err != nil {
				return fmt.Errorf("parse %s object in %s: %w", probe.Type, path, err)
			}
			if err := validate.Struct(obj); err != nil {
				return fmt.Errorf("invalid %s object in %s: %w", probe.Type, path, err)
			}
			b.BackupObjects = append(b.BackupObjects, obj)

		case TypeChecker:
			factory, ok := checkObjectTypes[probe.Type]
			if !ok {
				return fmt.Errorf("unknown check object type %q in %s", probe.Type, path)
			}
			obj := factory()
			if err := node.Decode(obj); err != nil {
				return fmt.Errorf("parse %s object in %s: %w", probe.Type, path, err)
			}
			if err := validate.Struct(obj); err != nil {
				return fmt.Errorf("invalid %s object in %s: %w", probe.Type, path, err)
			}
			b.CheckObjects = append(b.CheckObjects, obj)
		}
	}
	return nil
}
