package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finitor/internal/log"

	gdrive "google.golang.org/api/drive/v3"
	goption "google.golang.org/api/option"
)

// DriveUploader pushes copies of the sqlite database file to a Google
// Drive folder.
type DriveUploader struct {
	svc      *gdrive.Service
	folderID string
	logger   *log.Logger
}

// NewDriveUploader creates an uploader backed by service account
// credentials. Credentials come from the given file, or from
// GOOGLE_SERVICE_ACCOUNT_JSON / GOOGLE_APPLICATION_CREDENTIALS when
// the file path is empty.
func NewDriveUploader(ctx context.Context, folderID, credentialsFile string, logger *log.Logger) (*DriveUploader, error) {
	if strings.TrimSpace(folderID) == "" {
		return nil, errors.New("missing Drive folder id")
	}

	svc, err := newDriveService(ctx, credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}

	return &DriveUploader{
		svc:      svc,
		folderID: folderID,
		logger:   logger.WithComponent(log.ComponentBackup),
	}, nil
}

func newDriveService(ctx context.Context, credentialsFile string) (*gdrive.Service, error) {
	inlineJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	if credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case inlineJSON != "":
		credentialsJSON = []byte(inlineJSON)
	case credentialsFile != "":
		credentialsJSON, err = os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gdrive.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gdrive.DriveFileScope))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return service, nil
}

// Upload copies the database file at dbPath into the configured
// folder under a timestamped name and returns the Drive file id.
func (u *DriveUploader) Upload(ctx context.Context, dbPath string) (string, error) {
	f, err := os.Open(dbPath)
	if err != nil {
		return "", fmt.Errorf("open database file: %w", err)
	}
	defer f.Close()

	name := backupName(dbPath, time.Now())
	meta := &gdrive.File{
		Name:     name,
		Parents:  []string{u.folderID},
		MimeType: "application/vnd.sqlite3",
	}

	created, err := u.svc.Files.Create(meta).Media(f).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}

	u.logger.InfoContext(ctx, "uploaded database backup",
		"name", name,
		"file_id", created.Id,
		"folder_id", u.folderID)
	return created.Id, nil
}

// Prune deletes backups in the folder beyond the newest keep files.
func (u *DriveUploader) Prune(ctx context.Context, keep int) error {
	if keep < 1 {
		return fmt.Errorf("keep must be at least 1, got %d", keep)
	}

	list, err := u.svc.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed = false", u.folderID)).
		OrderBy("createdTime desc").
		Fields("files(id, name)").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}

	if len(list.Files) <= keep {
		return nil
	}
	for _, f := range list.Files[keep:] {
		if err := u.svc.Files.Delete(f.Id).Context(ctx).Do(); err != nil {
			return fmt.Errorf("delete backup %s: %w", f.Name, err)
		}
		u.logger.InfoContext(ctx, "pruned old backup", "name", f.Name)
	}
	return nil
}

func backupName(dbPath string, now time.Time) string {
	base := strings.TrimSuffix(filepath.Base(dbPath), filepath.Ext(dbPath))
	return fmt.Sprintf("%s-backup-%s.db", base, now.UTC().Format("20060102-150405"))
}
