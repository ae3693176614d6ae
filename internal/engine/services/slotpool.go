package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/slotkeeper/internal/common"
	"github.com/dmitrijs2005/slotkeeper/internal/dbx"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/models"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/repomanager"
	"github.com/dmitrijs2005/slotkeeper/internal/licensekey"
	"github.com/dmitrijs2005/slotkeeper/internal/logging"
)

// BindResult is the outcome of SlotPool.Bind. Reused is set when the hardware
// already held a slot of the pair and nothing was changed.
type BindResult struct {
	Success bool  `json:"success"`
	ID      int64 `json:"id,omitempty"`
	Reused  bool  `json:"reused,omitempty"`
}

// ReleaseResult is the outcome of SlotPool.Release. A release with nothing to
// free has Success false and Error set to common.NoBoundLicense.
type ReleaseResult struct {
	Success bool   `json:"success"`
	ID      int64  `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SlotPoolOptions tunes a SlotPool. Zero values are usable.
type SlotPoolOptions struct {
	// EnforceQuota rejects a bind that would occupy more slots than the pair
	// has approved payments.
	EnforceQuota bool
	Now          func() time.Time
	KeyGen       func(now time.Time, userID int64) string
}

// SlotPool allocates, binds and releases license slots of (application,
// email) pairs. Mutations run in one transaction each and are serialised per
// pair by a transaction-scoped lock.
type SlotPool struct {
	db           dbx.DBTX
	tx           dbx.Transactor
	repomanager  repomanager.RepositoryManager
	users        *UserResolver
	log          logging.Logger
	enforceQuota bool
	now          func() time.Time
	keygen       func(now time.Time, userID int64) string
}

// NewSlotPool wires a SlotPool. db serves read-only listings, tx runs the
// mutating operations.
func NewSlotPool(db dbx.DBTX, tx dbx.Transactor, m repomanager.RepositoryManager, log logging.Logger, opts SlotPoolOptions) *SlotPool {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.KeyGen == nil {
		opts.KeyGen = licensekey.Generate
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &SlotPool{
		db:           db,
		tx:           tx,
		repomanager:  m,
		users:        NewUserResolver(m, opts.Now),
		log:          log.With("component", "slotpool"),
		enforceQuota: opts.EnforceQuota,
		now:          opts.Now,
		keygen:       opts.KeyGen,
	}
}

// Bind occupies a slot of the pair with hardwareID, reusing the pair's free
// slot when there is one and inserting a new slot otherwise.
func (s *SlotPool) Bind(ctx context.Context, appID int64, email, hardwareID string) (*BindResult, error) {
	in := bindInput{AppID: appID, Email: strings.TrimSpace(email), HardwareID: strings.TrimSpace(hardwareID)}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	log := logging.ForPair(s.log, in.AppID, in.Email)

	var res *BindResult
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		res, err = s.bind(ctx, tx, in, log)
		return err
	})
	if err != nil {
		err = common.WrapStore("bind", err)
		s.logFailure(ctx, log, "bind failed", err, "hardware_id", in.HardwareID)
		return nil, err
	}

	log.Info(ctx, "slot bound", "hardware_id", in.HardwareID, "license_id", res.ID, "reused", res.Reused)
	return res, nil
}

func (s *SlotPool) bind(ctx context.Context, tx dbx.DBTX, in bindInput, log logging.Logger) (*BindResult, error) {
	licenses := s.repomanager.Licenses(tx)

	if err := licenses.LockPair(ctx, in.AppID, in.Email); err != nil {
		return nil, err
	}

	app, err := s.repomanager.Apps(tx).Get(ctx, in.AppID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.NewValidationError("app_id", "unknown application")
	}
	if err != nil {
		return nil, err
	}

	userID, err := s.users.ResolveOrCreate(ctx, tx, in.Email)
	if err != nil {
		return nil, err
	}

	held, err := licenses.FindOccupiedByHardware(ctx, in.AppID, in.Email, in.HardwareID)
	if err == nil {
		return &BindResult{Success: true, ID: held.ID, Reused: true}, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	if err := s.checkPayments(ctx, tx, in, log); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	l := &models.License{
		UserID:     userID,
		AppID:      in.AppID,
		AppName:    app.Name,
		Email:      in.Email,
		HardwareID: in.HardwareID,
		LicenseKey: s.keygen(now, userID),
	}

	id, err := licenses.ClaimFree(ctx, l, now)
	if err == nil {
		return &BindResult{Success: true, ID: id}, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	id, err = licenses.Insert(ctx, l, now)
	if err != nil {
		return nil, err
	}
	return &BindResult{Success: true, ID: id}, nil
}

// checkPayments applies the quota policy when it is enabled. Otherwise a bind
// without any approved payment is only logged.
func (s *SlotPool) checkPayments(ctx context.Context, tx dbx.DBTX, in bindInput, log logging.Logger) error {
	gate := NewPaymentGate(s.repomanager.Payments(tx))

	if !s.enforceQuota {
		paid, err := gate.HasApprovedPayment(ctx, in.AppID, in.Email)
		if err != nil {
			return err
		}
		if !paid {
			log.Info(ctx, "binding without approved payment")
		}
		return nil
	}

	approved, err := gate.ApprovedCount(ctx, in.AppID, in.Email)
	if err != nil {
		return err
	}
	occupied, err := s.repomanager.Licenses(tx).CountOccupied(ctx, in.AppID, in.Email)
	if err != nil {
		return err
	}
	if occupied >= approved {
		return fmt.Errorf("%w: %d of %d slots in use", common.ErrQuotaExceeded, occupied, approved)
	}
	return nil
}

// Release frees the pair's most recently updated occupied slot. Any free slot
// the pair already had is deleted first so at most one free slot remains.
func (s *SlotPool) Release(ctx context.Context, appID int64, email string) (*ReleaseResult, error) {
	in := pairInput{AppID: appID, Email: strings.TrimSpace(email)}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	log := logging.ForPair(s.log, in.AppID, in.Email)

	var res *ReleaseResult
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		res, err = s.release(ctx, tx, in, log)
		return err
	})
	if err != nil {
		err = common.WrapStore("release", err)
		s.logFailure(ctx, log, "release failed", err)
		return nil, err
	}

	if !res.Success {
		log.Info(ctx, "nothing to release", "outcome", res.Error)
		return res, nil
	}
	log.Info(ctx, "slot released", "license_id", res.ID)
	return res, nil
}

func (s *SlotPool) release(ctx context.Context, tx dbx.DBTX, in pairInput, log logging.Logger) (*ReleaseResult, error) {
	licenses := s.repomanager.Licenses(tx)

	if err := licenses.LockPair(ctx, in.AppID, in.Email); err != nil {
		return nil, err
	}

	target, err := licenses.FindLatestOccupied(ctx, in.AppID, in.Email)
	if errors.Is(err, common.ErrorNotFound) {
		return &ReleaseResult{Success: false, Error: common.NoBoundLicense}, nil
	}
	if err != nil {
		return nil, err
	}

	removed, err := licenses.DeleteFree(ctx, in.AppID, in.Email)
	if err != nil {
		return nil, err
	}
	if removed > 0 {
		log.Debug(ctx, "free slots consolidated", "removed", removed)
	}

	if err := licenses.Clear(ctx, target.ID, s.now().UTC()); err != nil {
		return nil, err
	}
	return &ReleaseResult{Success: true, ID: target.ID}, nil
}

// logFailure logs rejected requests at Warn and store failures at Error.
func (s *SlotPool) logFailure(ctx context.Context, log logging.Logger, msg string, err error, args ...any) {
	args = append(args, "error", err)
	if common.Marker(err) == common.MarkerStore {
		log.Error(ctx, msg, args...)
		return
	}
	log.Warn(ctx, msg, args...)
}

// Pool lists every slot of the pair ordered by id. It never returns nil on
// success.
func (s *SlotPool) Pool(ctx context.Context, appID int64, email string) ([]*models.License, error) {
	in := pairInput{AppID: appID, Email: strings.TrimSpace(email)}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	list, err := s.repomanager.Licenses(s.db).ListByPair(ctx, in.AppID, in.Email)
	if err != nil {
		return nil, common.WrapStore("pool", err)
	}
	if list == nil {
		list = []*models.License{}
	}
	return list, nil
}
