package folders

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"

	"linkrelay/internal/logging"
)

// Status is the outcome of an idempotent folder creation.
type Status int

const (
	StatusCreated Status = iota + 1
	StatusExists
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusExists:
		return "exists"
	default:
		return "unknown"
	}
}

// Client is the WebDAV surface the manager needs.
type Client interface {
	CreateFolder(ctx context.Context, folderPath string) (bool, error)
	MoveFolder(ctx context.Context, fromPath, toPath string) error
}

// Manager creates and renames the remote folders that back tasks.
type Manager struct {
	client Client
	logger *slog.Logger
}

// NewManager returns a manager that logs through logger.
func NewManager(client Client, logger *slog.Logger) *Manager {
	return &Manager{client: client, logger: logging.NewComponentLogger(logger, "folders")}
}

// Create makes the folder. An existing folder counts as success.
func (m *Manager) Create(ctx context.Context, folderPath string) (Status, error) {
	logger := logging.WithContext(ctx, m.logger).With(logging.String("folder_path", folderPath))
	created, err := m.client.CreateFolder(ctx, folderPath)
	if err != nil {
		logging.ErrorWithContext(logger, "folder creation failed", "folder_create_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check nextcloud credentials and that the catalog folder exists"),
			logging.String(logging.FieldImpact, "no share link is created for this task"),
		)
		return 0, err
	}
	if created {
		logger.Info("folder created", logging.String(logging.FieldEventType, "folder_created"))
		return StatusCreated, nil
	}
	logger.Info("folder already exists", logging.String(logging.FieldEventType, "folder_exists"))
	return StatusExists, nil
}

// Rename moves the folder. Failures are logged and returned; callers do not roll back.
func (m *Manager) Rename(ctx context.Context, oldPath, newPath string) error {
	logger := logging.WithContext(ctx, m.logger).With(
		logging.String("from", oldPath),
		logging.String("to", newPath),
	)
	if err := m.client.MoveFolder(ctx, oldPath, newPath); err != nil {
		logging.WarnWithContext(logger, "folder rename failed", "folder_rename_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "rename the folder manually or re-send the rename event"),
			logging.String(logging.FieldImpact, "journal points at the new path while the remote folder keeps the old name"),
		)
		return err
	}
	logger.Info("folder renamed", logging.String(logging.FieldEventType, "folder_renamed"))
	return nil
}

// PathFor builds the folder path for a task: "<catalog>/<humanNumber>. <name>",
// or "<catalog>/<name>_<taskID>" when the task has no human number.
func PathFor(catalog, taskID, name, humanNumber string) string {
	catalog = "/" + strings.Trim(strings.TrimSpace(catalog), "/")
	name = sanitize(name)
	humanNumber = sanitize(humanNumber)
	taskID = sanitize(taskID)

	var leaf string
	switch {
	case name == "":
		leaf = taskID
	case humanNumber != "":
		leaf = humanNumber + ". " + name
	default:
		leaf = name + "_" + taskID
	}
	if leaf == "" || leaf == "." || leaf == ".." {
		leaf = "_" + leaf
	}
	return path.Join(catalog, leaf)
}

func sanitize(value string) string {
	value = norm.NFC.String(strings.TrimSpace(value))
	return strings.ReplaceAll(value, "/", "-")
}
