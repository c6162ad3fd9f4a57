package config

// Work-object type tags as they appear in configuration files.
const (
	TypeFile             = "file"
	TypeFolder           = "folder"
	TypeMySQL            = "mysql"
	TypeSvn              = "svn"
	TypeRecentFileExists = "recent_file_exists"
	TypeCompareFileToSrc = "compare_file_to_src"
)

// BackupObject is one unit of backup work declared in an archive
// configuration. The concrete variants form a closed set; dispatch happens on
// the type tag.
type BackupObject interface {
	ObjectType() string

	// Subfolder is the target subfolder below the staging folder.
	Subfolder() string
}

// CheckObject is one verification rule declared in a checker configuration.
type CheckObject interface {
	ObjectType() string

	// ScheduleExpr is the cron expression the rule is checked against.
	ScheduleExpr() string
}

// backupObjectTypes and checkObjectTypes are the static dispatch tables
// mapping configuration type tags to variant constructors.
var backupObjectTypes = map[string]func() BackupObject{
	TypeFile:   func() BackupObject { return &FileObject{} },
	TypeFolder: func() BackupObject { return &FolderObject{} },
	TypeMySQL:  func() BackupObject { return &MySQLObject{} },
	TypeSvn:    func() BackupObject { return &SvnObject{} },
}

var checkObjectTypes = map[string]func() CheckObject{
	TypeRecentFileExists: func() CheckObject { return &RecentFileExistsObject{} },
	TypeCompareFileToSrc: func() CheckObject { return &CompareFileToSrcObject{} },
}

// FileObject copies a single file into the staging folder.
type FileObject struct {
	TargetSubfolder string `yaml:"target_subfolder" validate:"required"`
	SrcFilePath     string `yaml:"src_file_path" validate:"required"`

	// TargetFileName defaults to the source file's base name.
	TargetFileName string `yaml:"target_file_name"`
}

func (o *FileObject) ObjectType() string { return TypeFile }
func (o *FileObject) Subfolder() string  { return o.TargetSubfolder }

// FolderObject copies a whole folder tree into the staging folder.
type FolderObject struct {
	TargetSubfolder string `yaml:"target_subfolder" validate:"required"`
	SrcFolderPath   string `yaml:"src_folder_path" validate:"required"`
}

func (o *FolderObject) ObjectType() string { return TypeFolder }
func (o *FolderObject) Subfolder() string  { return o.TargetSubfolder }

// MySQLObject dumps a MySQL database via mysqldump.
type MySQLObject struct {
	TargetSubfolder string `yaml:"target_subfolder" validate:"required"`
	TargetFileName  string `yaml:"target_file_name" validate:"required"`
	Database        string `yaml:"database" validate:"required"`
	User            string `yaml:"user" validate:"required"`
	Password        string `yaml:"password" validate:"required"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port" validate:"min=0,max=65535"`
}

func (o *MySQLObject) ObjectType() string { return TypeMySQL }
func (o *MySQLObject) Subfolder() string  { return o.TargetSubfolder }

// SvnObject snapshots a Subversion repository via svnadmin hotcopy.
type SvnObject struct {
	TargetSubfolder  string `yaml:"target_subfolder" validate:"required"`
	RepositoryFolder string `yaml:"repository_folder" validate:"required"`
}

func (o *SvnObject) ObjectType() string { return TypeSvn }
func (o *SvnObject) Subfolder() string  { return o.TargetSubfolder }

// RecentFileExistsObject verifies that a folder holds at least one fresh file
// matching a pattern.
type RecentFileExistsObject struct {
	Schedule              string `yaml:"schedule" validate:"required,cron"`
	BackupFolder          string `yaml:"backup_folder" validate:"required"`
	BackupFileNamePattern string `yaml:"backup_file_name_pattern" validate:"required"`
}

func (o *RecentFileExistsObject) ObjectType() string   { return TypeRecentFileExists }
func (o *RecentFileExistsObject) ScheduleExpr() string { return o.Schedule }

// CompareFileToSrcObject verifies that a backup copy of a file is at least as
// fresh as the schedule demands, relaxed by the source file's own age.
type CompareFileToSrcObject struct {
	Schedule   string `yaml:"schedule" validate:"required,cron"`
	BackupFile string `yaml:"backup_file" validate:"required"`
	SrcFile    string `yaml:"src_file" validate:"required"`
}

func (o *CompareFileToSrcObject) ObjectType() string   { return TypeCompareFileToSrc }
func (o *CompareFileToSrcObject) ScheduleExpr() string { return o.Schedule }
