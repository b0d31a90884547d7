package links

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"time"

	"linkrelay/internal/journal"
	"linkrelay/internal/logging"
	"linkrelay/internal/services"
	"linkrelay/internal/services/nextcloud"
)

// ShareClient is the sharing API surface the provisioner needs.
type ShareClient interface {
	CreateShare(ctx context.Context, folderPath string) (nextcloud.Share, error)
	DeleteShare(ctx context.Context, shareID string) error
}

// TrackerClient writes the link back into the task.
type TrackerClient interface {
	SetLink(ctx context.Context, taskID, value string) error
}

// Link is a minted public share. The zero value means no link was established.
type Link struct {
	ShareID string
	URL     string
}

// IsZero reports whether no share was minted.
func (l Link) IsZero() bool {
	return l.ShareID == ""
}

// Option customizes a Provisioner.
type Option func(*Provisioner)

// WithClock overrides the time source used to date the tracker anchor.
func WithClock(now func() time.Time) Option {
	return func(p *Provisioner) { p.now = now }
}

// WithLocation sets the zone used to date the tracker anchor.
func WithLocation(loc *time.Location) Option {
	return func(p *Provisioner) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// Provisioner mints, revokes, and refreshes public shares and keeps the
// tracker and journal in step with them.
type Provisioner struct {
	shares  ShareClient
	tracker TrackerClient
	store   journal.Store
	logger  *slog.Logger
	now     func() time.Time
	loc     *time.Location
}

// NewProvisioner wires a provisioner. The anchor date defaults to UTC+3.
func NewProvisioner(shares ShareClient, tracker TrackerClient, store journal.Store, logger *slog.Logger, opts ...Option) *Provisioner {
	p := &Provisioner{
		shares:  shares,
		tracker: tracker,
		store:   store,
		logger:  logging.NewComponentLogger(logger, "links"),
		now:     time.Now,
		loc:     time.FixedZone("UTC+3", 3*60*60),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Create mints a public share for folderPath and pushes it to the tracker.
//
// A failed mint is logged and yields a zero Link. If the tracker reports the
// task missing, the binding is released using the just-minted share. Only
// journal persistence failures are returned as errors.
func (p *Provisioner) Create(ctx context.Context, taskID, folderPath string) (Link, error) {
	logger := logging.WithContext(ctx, p.logger).With(
		logging.String(logging.FieldTaskID, taskID),
		logging.String("folder_path", folderPath),
	)

	share, err := p.shares.CreateShare(ctx, folderPath)
	if err != nil {
		logging.ErrorWithContext(logger, "share creation failed", "share_create_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check nextcloud credentials, csrf token, and that the folder exists"),
		)
		return Link{}, nil
	}
	link := Link{ShareID: share.ID, URL: share.URL}
	logger.Info("share created",
		logging.String("share_id", link.ShareID),
		logging.String("share_url", link.URL),
		logging.String(logging.FieldEventType, "share_created"),
	)

	err = p.tracker.SetLink(ctx, taskID, p.Anchor(link.URL))
	switch {
	case err == nil:
		logger.Info("link pushed to tracker", logging.String(logging.FieldEventType, "tracker_link_set"))
	case errors.Is(err, services.ErrNotFound):
		logging.WarnWithContext(logger, "task missing on tracker; releasing binding", "tracker_task_missing",
			logging.String("share_id", link.ShareID),
			logging.String(logging.FieldImpact, "binding removed and the new share revoked"),
		)
		if err := p.Release(ctx, taskID, link.ShareID); err != nil {
			return link, err
		}
	default:
		logging.WarnWithContext(logger, "tracker link update failed", "tracker_update_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check tracker url and api key"),
			logging.String(logging.FieldImpact, "share exists and is journaled but the task does not show it until the next sweep"),
		)
	}
	return link, nil
}

// Revoke deletes a share. Failures are logged, never returned; the result
// reports whether the remote call succeeded. An empty id is skipped.
func (p *Provisioner) Revoke(ctx context.Context, shareID string) bool {
	logger := logging.WithContext(ctx, p.logger).With(logging.String("share_id", shareID))
	if shareID == "" {
		logger.Debug("no share to revoke")
		return false
	}
	if err := p.shares.DeleteShare(ctx, shareID); err != nil {
		logging.WarnWithContext(logger, "share revoke failed", "share_revoke_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete the share manually in nextcloud if it is still listed"),
			logging.String(logging.FieldImpact, "old public link may remain reachable"),
		)
		return false
	}
	logger.Info("share revoked", logging.String(logging.FieldEventType, "share_revoked"))
	return true
}

// Update revokes shareID and mints a replacement. Creation is attempted even
// when the revoke fails.
func (p *Provisioner) Update(ctx context.Context, taskID, shareID, folderPath string) (Link, error) {
	p.Revoke(ctx, shareID)
	return p.Create(ctx, taskID, folderPath)
}

// Release removes taskID from the journal and revokes its share. When
// overrideShareID is set it is revoked instead of the journaled share, and it
// is revoked even if the task is no longer journaled.
func (p *Provisioner) Release(ctx context.Context, taskID, overrideShareID string) error {
	logger := logging.WithContext(ctx, p.logger).With(logging.String(logging.FieldTaskID, taskID))

	j, err := p.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("release %s: %w", taskID, err)
	}
	binding, ok := j.Get(taskID)
	if !ok {
		logging.WarnWithContext(logger, "task not in journal", "journal_task_missing",
			logging.String(logging.FieldImpact, "nothing to remove"),
		)
		if overrideShareID != "" {
			p.Revoke(ctx, overrideShareID)
		}
		return nil
	}

	shareID := binding.ShareID
	if overrideShareID != "" {
		shareID = overrideShareID
	}
	p.Revoke(ctx, shareID)

	j.Delete(taskID)
	if err := p.store.Save(ctx, j); err != nil {
		return fmt.Errorf("release %s: %w", taskID, err)
	}
	logger.Info("task removed from journal", logging.String(logging.FieldEventType, "binding_released"))
	return nil
}

// Anchor renders the tracker field value: an HTML link dated in the
// provisioner's zone as DD.MM.YYYY.
func (p *Provisioner) Anchor(shareURL string) string {
	date := p.now().In(p.loc).Format("02.01.2006")
	return fmt.Sprintf(`<a href="%s" target="_blank">Папка задачи от %s</a>`, html.EscapeString(shareURL), date)
}
