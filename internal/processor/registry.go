package processor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/backup/internal/config"
	"github.com/edvin/backup/internal/multicopy"
)

// ActionError reports a failed work-object action, carrying any output of an
// external tool.
type ActionError struct {
	ObjectType string
	Output     string
	Err        error
}

func (e *ActionError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s action failed: %v: %s", e.ObjectType, e.Err, e.Output)
	}
	return fmt.Sprintf("%s action failed: %v", e.ObjectType, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// Action executes one work object, assembling its output below targetDir.
type Action func(ctx context.Context, obj config.BackupObject, targetDir string) error

// Registry maps work-object type tags to their actions. It is built once at
// process start and handed to the backup processor; there is no global
// registration.
type Registry struct {
	logger  zerolog.Logger
	actions map[string]Action
}

// NewRegistry creates the registry with every supported work-object action.
func NewRegistry(logger zerolog.Logger) *Registry {
	r := &Registry{logger: logger.With().Str("component", "work-objects").Logger()}
	r.actions = map[string]Action{
		config.TypeFile:   r.backupFile,
		config.TypeFolder: r.backupFolder,
		config.TypeMySQL:  r.backupMySQL,
		config.TypeSvn:    r.backupSvn,
	}
	return r
}

// Run dispatches obj to its action, with the object's target subfolder
// resolved below stagingDir.
func (r *Registry) Run(ctx context.Context, obj config.BackupObject, stagingDir string) error {
	action, ok := r.actions[obj.ObjectType()]
	if !ok {
		return fmt.Errorf("no action registered for work-object type %q", obj.ObjectType())
	}
	return action(ctx, obj, filepath.Join(stagingDir, obj.Subfolder()))
}

func (r *Registry) backupFile(_ context.Context, obj config.BackupObject, targetDir string) error {
	o := obj.(*config.FileObject)

	info, err := os.Stat(o.SrcFilePath)
	if err != nil || info.IsDir() {
		return &ActionError{ObjectType: config.TypeFile, Err: fmt.Errorf("source file %q does not exist", o.SrcFilePath)}
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return &ActionError{ObjectType: config.TypeFile, Err: err}
	}

	name := o.TargetFileName
	if name == "" {
		name = filepath.Base(o.SrcFilePath)
	}
	target := filepath.Join(targetDir, name)

	r.logger.Info().Str("src", o.SrcFilePath).Str("target", target).Msg("copying file")
	if err := multicopy.CopyFile(o.SrcFilePath, target); err != nil {
		return &ActionError{ObjectType: config.TypeFile, Err: err}
	}
	return nil
}

func (r *Registry) backupFolder(_ context.Context, obj config.BackupObject, targetDir string) error {
	o := obj.(*config.FolderObject)

	info, err := os.Stat(o.SrcFolderPath)
	if err != nil || !info.IsDir() {
		return &ActionError{ObjectType: config.TypeFolder, Err: fmt.Errorf("source folder %q does not exist", o.SrcFolderPath)}
	}
	if _, err := os.Stat(targetDir); err == nil {
		// The staging folder starts empty, so a pre-existing target means
		// two objects collide on the same subfolder.
		return &ActionError{ObjectType: config.TypeFolder, Err: fmt.Errorf("target folder %q already exists", targetDir)}
	}
	if err := os.MkdirAll(filepath.Dir(targetDir), 0o755); err != nil {
		return &ActionError{ObjectType: config.TypeFolder, Err: err}
	}

	r.logger.Info().Str("src", o.SrcFolderPath).Str("target", targetDir).Msg("copying folder")
	if _, err := multicopy.CopyTree(o.SrcFolderPath, targetDir, false); err != nil {
		return &ActionError{ObjectType: config.TypeFolder, Err: err}
	}
	return nil
}

func (r *Registry) backupMySQL(ctx context.Context, obj config.BackupObject, targetDir string) error {
	o := obj.(*config.MySQLObject)

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return &ActionError{ObjectType: config.TypeMySQL, Err: err}
	}
	target := filepath.Join(targetDir, o.TargetFileName)

	out, err := os.Create(target)
	if err != nil {
		return &ActionError{ObjectType: config.TypeMySQL, Err: err}
	}
	defer out.Close()

	cmd := exec.CommandContext(ctx, "mysqldump", mysqldumpArgs(o)...)
	cmd.Stdout = out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	r.logger.Info().Str("database", o.Database).Str("target", target).Msg("dumping database")
	if err := cmd.Run(); err != nil {
		return &ActionError{
			ObjectType: config.TypeMySQL,
			Output:     strings.TrimSpace(stderr.String()),
			Err:        fmt.Errorf("mysqldump %s: %w", o.Database, err),
		}
	}
	return nil
}

// mysqldumpArgs builds the fixed mysqldump invocation for a database object.
// The password travels as a flag, as the original tooling did; callers are
// expected to protect the configuration file instead.
func mysqldumpArgs(o *config.MySQLObject) []string {
	args := []string{
		o.Database,
		"--lock-tables",
		"--opt",
		"--skip-extended-insert",
		"--user=" + o.User,
		"--password=" + o.Password,
	}
	if o.Host != "" {
		args = append(args, "--host="+o.Host)
	}
	if o.Port != 0 {
		args = append(args, fmt.Sprintf("--port=%d", o.Port))
	}
	return args
}

func (r *Registry) backupSvn(ctx context.Context, obj config.BackupObject, targetDir string) error {
	o := obj.(*config.SvnObject)

	// svnadmin hotcopy refuses an existing target, so only the parent is
	// created.
	if _, err := os.Stat(targetDir); err == nil {
		return &ActionError{ObjectType: config.TypeSvn, Err: fmt.Errorf("target folder %q already exists", targetDir)}
	}
	if err := os.MkdirAll(filepath.Dir(targetDir), 0o755); err != nil {
		return &ActionError{ObjectType: config.TypeSvn, Err: err}
	}

	cmd := exec.CommandContext(ctx, "svnadmin", "hotcopy", o.RepositoryFolder, targetDir)
	r.logger.Info().Str("repository", o.RepositoryFolder).Str("target", targetDir).Msg("hotcopying repository")

	if output, err := cmd.CombinedOutput(); err != nil {
		return &ActionError{
			ObjectType: config.TypeSvn,
			Output:     strings.TrimSpace(string(output)),
			Err:        fmt.Errorf("svnadmin hotcopy %s: %w", o.RepositoryFolder, err),
		}
	}
	return nil
}
