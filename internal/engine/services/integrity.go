package services

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/slotkeeper/internal/common"
	"github.com/dmitrijs2005/slotkeeper/internal/dbx"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/models"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/repomanager"
	"github.com/dmitrijs2005/slotkeeper/internal/logging"
	"golang.org/x/sync/errgroup"
)

// IntegrityOptions tunes an IntegrityChecker. Zero values are usable.
type IntegrityOptions struct {
	RetryAttempts uint64
	RetryBase     time.Duration
	Now           func() time.Time
}

// IntegrityChecker runs read-only consistency sweeps. Findings are data,
// never errors, and nothing is repaired.
type IntegrityChecker struct {
	db          dbx.DBTX
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	attempts    uint64
	base        time.Duration
	now         func() time.Time
}

func NewIntegrityChecker(db dbx.DBTX, m repomanager.RepositoryManager, log logging.Logger, opts IntegrityOptions) *IntegrityChecker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &IntegrityChecker{
		db:          db,
		repomanager: m,
		log:         log.With("component", "integrity"),
		attempts:    opts.RetryAttempts,
		base:        opts.RetryBase,
		now:         opts.Now,
	}
}

// sweep runs fn, retrying on transient connection errors, and never returns
// a nil slice on success.
func sweep[T any](ctx context.Context, c *IntegrityChecker, name string, fn func(ctx context.Context) ([]T, error)) ([]T, error) {
	var out []T
	err := dbx.Retry(ctx, c.attempts, c.base, dbx.IsTransient, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if err != nil {
		c.log.Error(ctx, "sweep failed", "sweep", name, "error", err)
		return nil, common.WrapStore(name, err)
	}
	if out == nil {
		out = []T{}
	}
	c.log.Debug(ctx, "sweep done", "sweep", name, "findings", len(out))
	return out, nil
}

func (c *IntegrityChecker) OrphanedApplicationOwners(ctx context.Context) ([]*models.OrphanedOwner, error) {
	return sweep(ctx, c, "orphaned application owners", c.repomanager.Integrity(c.db).OrphanedApplicationOwners)
}

// PaymentsWithBadUser looks at approved payments only. A payment without a
// user id is not an orphan.
func (c *IntegrityChecker) PaymentsWithBadUser(ctx context.Context) ([]*models.PaymentFinding, error) {
	return sweep(ctx, c, "payments with bad user", c.repomanager.Integrity(c.db).PaymentsWithBadUser)
}

func (c *IntegrityChecker) PriceWithoutDeliverable(ctx context.Context) ([]*models.DeliverableFinding, error) {
	return sweep(ctx, c, "price without deliverable", c.repomanager.Integrity(c.db).PriceWithoutDeliverable)
}

func (c *IntegrityChecker) LicensesWithBadUser(ctx context.Context, limit int) ([]*models.LicenseFinding, error) {
	if limit <= 0 {
		return nil, common.NewValidationError("limit", "must be positive")
	}
	repo := c.repomanager.Integrity(c.db)
	return sweep(ctx, c, "licenses with bad user", func(ctx context.Context) ([]*models.LicenseFinding, error) {
		return repo.LicensesWithBadUser(ctx, limit)
	})
}

// RecentDeniedActivations returns up to limit denied attempts from the last
// sinceDays days, newest first.
func (c *IntegrityChecker) RecentDeniedActivations(ctx context.Context, limit, sinceDays int) ([]*models.ActivationAttempt, error) {
	if limit <= 0 {
		return nil, common.NewValidationError("limit", "must be positive")
	}
	if sinceDays <= 0 {
		return nil, common.NewValidationError("since_days", "must be positive")
	}
	since := c.now().UTC().Add(-time.Duration(sinceDays) * 24 * time.Hour)
	repo := c.repomanager.Activations(c.db)
	return sweep(ctx, c, "recent denied activations", func(ctx context.Context) ([]*models.ActivationAttempt, error) {
		return repo.RecentDenied(ctx, since, limit)
	})
}

// PaymentsVsLicenses compares approved payments with occupied slots for the
// pair. Mismatch means more slots are occupied than were paid for.
func (c *IntegrityChecker) PaymentsVsLicenses(ctx context.Context, appID int64, email string) (*models.PaymentsVsLicenses, error) {
	in := pairInput{AppID: appID, Email: strings.TrimSpace(email)}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	gate := NewPaymentGate(c.repomanager.Payments(c.db))
	licenses := c.repomanager.Licenses(c.db)

	var report *models.PaymentsVsLicenses
	err := dbx.Retry(ctx, c.attempts, c.base, dbx.IsTransient, func(ctx context.Context) error {
		approved, err := gate.ApprovedCount(ctx, in.AppID, in.Email)
		if err != nil {
			return err
		}
		occupied, err := licenses.CountOccupied(ctx, in.AppID, in.Email)
		if err != nil {
			return err
		}
		report = &models.PaymentsVsLicenses{
			AppID:            in.AppID,
			Email:            in.Email,
			ApprovedPayments: approved,
			OccupiedSlots:    occupied,
			Mismatch:         occupied > approved,
		}
		return nil
	})
	if err != nil {
		c.log.Error(ctx, "reconciliation failed", "app_id", in.AppID, "email", in.Email, "error", err)
		return nil, common.WrapStore("payments vs licenses", err)
	}
	if report.Mismatch {
		c.log.Warn(ctx, "occupied slots exceed approved payments", "app_id", in.AppID, "email", in.Email,
			"approved", report.ApprovedPayments, "occupied", report.OccupiedSlots)
	}
	return report, nil
}

// DiagnoseOptions selects the bounds of a Diagnose run. The pair check runs
// only when both AppID and Email are set.
type DiagnoseOptions struct {
	Limit     int
	SinceDays int
	AppID     int64
	Email     string
}

// DiagnoseReport collects the findings of every sweep.
type DiagnoseReport struct {
	OrphanedApplicationOwners []*models.OrphanedOwner      `json:"orphaned_application_owners"`
	PaymentsWithBadUser       []*models.PaymentFinding     `json:"payments_with_bad_user"`
	PriceWithoutDeliverable   []*models.DeliverableFinding `json:"price_without_deliverable"`
	LicensesWithBadUser       []*models.LicenseFinding     `json:"licenses_with_bad_user"`
	RecentDeniedActivations   []*models.ActivationAttempt  `json:"recent_denied_activations"`
	PaymentsVsLicenses        *models.PaymentsVsLicenses   `json:"payments_vs_licenses,omitempty"`
}

// Diagnose runs all sweeps concurrently and fails if any of them fails.
func (c *IntegrityChecker) Diagnose(ctx context.Context, opts DiagnoseOptions) (*DiagnoseReport, error) {
	if opts.Limit <= 0 {
		return nil, common.NewValidationError("limit", "must be positive")
	}
	if opts.SinceDays <= 0 {
		return nil, common.NewValidationError("since_days", "must be positive")
	}
	withPair := opts.AppID != 0 && strings.TrimSpace(opts.Email) != ""
	if withPair {
		if err := validateInput(pairInput{AppID: opts.AppID, Email: strings.TrimSpace(opts.Email)}); err != nil {
			return nil, err
		}
	}

	var r DiagnoseReport
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		r.OrphanedApplicationOwners, err = c.OrphanedApplicationOwners(gctx)
		return err
	})
	g.Go(func() (err error) {
		r.PaymentsWithBadUser, err = c.PaymentsWithBadUser(gctx)
		return err
	})
	g.Go(func() (err error) {
		r.PriceWithoutDeliverable, err = c.PriceWithoutDeliverable(gctx)
		return err
	})
	g.Go(func() (err error) {
		r.LicensesWithBadUser, err = c.LicensesWithBadUser(gctx, opts.Limit)
		return err
	})
	g.Go(func() (err error) {
		r.RecentDeniedActivations, err = c.RecentDeniedActivations(gctx, opts.Limit, opts.SinceDays)
		return err
	})
	if withPair {
		g.Go(func() (err error) {
			r.PaymentsVsLicenses, err = c.PaymentsVsLicenses(gctx, opts.AppID, opts.Email)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.log.Info(ctx, "diagnose done",
		"orphaned_owners", len(r.OrphanedApplicationOwners),
		"payments_with_bad_user", len(r.PaymentsWithBadUser),
		"price_without_deliverable", len(r.PriceWithoutDeliverable),
		"licenses_with_bad_user", len(r.LicensesWithBadUser),
		"recent_denied", len(r.RecentDeniedActivations))
	return &r, nil
}
