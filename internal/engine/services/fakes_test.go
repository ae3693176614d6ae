package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/slotkeeper/internal/common"
	"github.com/dmitrijs2005/slotkeeper/internal/dbx"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/models"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/activations"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/apps"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/integrity"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/licenses"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/payments"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/users"
	"github.com/jackc/pgx/v5/pgconn"
)

// memStore is an in-memory stand-in for the database. Every repository call
// takes mu, pair locks live for the duration of a memTransactor.WithTx call.
type memStore struct {
	mu sync.Mutex

	users       map[string]*models.User
	apps        map[int64]*models.Application
	payments    []*models.Payment
	licenses    map[int64]*models.License
	activations []*models.ActivationAttempt
	nextUser    int64
	nextLicense int64

	faults map[string]*fault
	calls  map[string]int

	locksMu   sync.Mutex
	pairLocks map[string]*sync.Mutex
}

type fault struct {
	err       error
	remaining int // < 0 means forever
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[string]*models.User{},
		apps:      map[int64]*models.Application{},
		licenses:  map[int64]*models.License{},
		faults:    map[string]*fault{},
		calls:     map[string]int{},
		pairLocks: map[string]*sync.Mutex{},
	}
}

func (s *memStore) addApp(a *models.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[a.ID] = a
}

func (s *memStore) addUser(email string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUser++
	s.users[email] = &models.User{ID: s.nextUser, Email: email, Name: email}
	return s.nextUser
}

func (s *memStore) addPayment(p *models.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = append(s.payments, p)
}

func (s *memStore) addLicense(l models.License) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLicense++
	l.ID = s.nextLicense
	s.licenses[l.ID] = &l
	return l.ID
}

func (s *memStore) addActivation(a *models.ActivationAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activations = append(s.activations, a)
}

func (s *memStore) failAlways(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &fault{err: err, remaining: -1}
}

func (s *memStore) failTimes(op string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &fault{err: err, remaining: n}
}

func (s *memStore) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// hit records a call and returns the injected error, if any. mu must be held.
func (s *memStore) hit(op string) error {
	s.calls[op]++
	f, ok := s.faults[op]
	if !ok || f.remaining == 0 {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
	}
	return f.err
}

// pair returns copies of the pair's slots ordered by id.
func (s *memStore) pair(appID int64, email string) []models.License {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.License
	for _, l := range s.licenses {
		if l.AppID == appID && l.Email == email {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) user(email string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[email]; ok {
		c := *u
		return &c
	}
	return nil
}

type memSnapshot struct {
	users       map[string]models.User
	licenses    map[int64]models.License
	nextUser    int64
	nextLicense int64
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		users:       make(map[string]models.User, len(s.users)),
		licenses:    make(map[int64]models.License, len(s.licenses)),
		nextUser:    s.nextUser,
		nextLicense: s.nextLicense,
	}
	for k, v := range s.users {
		snap.users[k] = *v
	}
	for k, v := range s.licenses {
		snap.licenses[k] = *v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.users = make(map[string]*models.User, len(snap.users))
	for k, v := range snap.users {
		u := v
		s.users[k] = &u
	}
	s.licenses = make(map[int64]*models.License, len(snap.licenses))
	for k, v := range snap.licenses {
		l := v
		s.licenses[k] = &l
	}
	s.nextUser = snap.nextUser
	s.nextLicense = snap.nextLicense
}

func (s *memStore) pairLock(appID int64, email string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	key := strconv.FormatInt(appID, 10) + "\x00" + email
	m, ok := s.pairLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.pairLocks[key] = m
	}
	return m
}

// --- transactor ---

type txKey struct{}

type txState struct {
	held []*sync.Mutex
}

// memTransactor emulates a transaction: pair locks taken inside fn are held
// until it returns and a failed fn rolls the whole store back. Rollback is
// store-wide, so tests must not mix injected failures with concurrency.
type memTransactor struct {
	s     *memStore
	calls int
	mu    sync.Mutex
}

func (m *memTransactor) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	st := &txState{}
	defer func() {
		for i := len(st.held) - 1; i >= 0; i-- {
			st.held[i].Unlock()
		}
	}()

	m.s.mu.Lock()
	snap := m.s.snapshot()
	m.s.mu.Unlock()

	err := fn(context.WithValue(ctx, txKey{}, st), nil)
	if err != nil {
		m.s.mu.Lock()
		m.s.restore(snap)
		m.s.mu.Unlock()
	}
	return err
}

// --- repository manager ---

type memManager struct {
	s *memStore
}

func (m *memManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memManager) Users(dbx.DBTX) users.Repository              { return &memUsers{m.s} }
func (m *memManager) Apps(dbx.DBTX) apps.Repository                { return &memApps{m.s} }
func (m *memManager) Payments(dbx.DBTX) payments.Repository        { return &memPayments{m.s} }
func (m *memManager) Licenses(dbx.DBTX) licenses.Repository        { return &memLicenses{m.s} }
func (m *memManager) Activations(dbx.DBTX) activations.Repository  { return &memActivations{m.s} }
func (m *memManager) Integrity(dbx.DBTX) integrity.Repository      { return &memIntegrity{m.s} }

// --- users ---

type memUsers struct{ s *memStore }

func (r *memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("Users.GetByEmail"); err != nil {
		return nil, err
	}
	u, ok := r.s.users[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (r *memUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("Users.Create"); err != nil {
		return nil, err
	}
	if _, ok := r.s.users[u.Email]; ok {
		return nil, common.ErrAlreadyExists
	}
	r.s.nextUser++
	u.ID = r.s.nextUser
	c := *u
	r.s.users[u.Email] = &c
	return u, nil
}

// --- apps ---

type memApps struct{ s *memStore }

func (r *memApps) Get(ctx context.Context, id int64) (*models.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("Apps.Get"); err != nil {
		return nil, err
	}
	a, ok := r.s.apps[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *a
	return &c, nil
}

// --- payments ---

type memPayments struct{ s *memStore }

func (r *memPayments) CountApproved(ctx context.Context, appID int64, email string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("Payments.CountApproved"); err != nil {
		return 0, err
	}
	n := 0
	for _, p := range r.s.payments {
		if p.AppID == appID && p.PayerEmail == email && p.Status == common.PaymentApproved {
			n++
		}
	}
	return n, nil
}

// --- licenses ---

type memLicenses struct{ s *memStore }

func (r *memLicenses) LockPair(ctx context.Context, appID int64, email string) error {
	st, ok := ctx.Value(txKey{}).(*txState)
	if !ok {
		return errors.New("LockPair called outside a transaction")
	}
	r.s.mu.Lock()
	err := r.s.hit("Licenses.LockPair")
	r.s.mu.Unlock()
	if err != nil {
		return err
	}
	m := r.s.pairLock(appID, email)
	m.Lock()
	st.held = append(st.held, m)
	return nil
}

// enter yields first so unsynchronised callers interleave.
func (r *memLicenses) enter(op string) error {
	runtime.Gosched()
	r.s.mu.Lock()
	return r.s.hit(op)
}

func (r *memLicenses) FindOccupiedByHardware(ctx context.Context, appID int64, email, hardwareID string) (*models.License, error) {
	err := r.enter("Licenses.FindOccupiedByHardware")
	defer r.s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var found *models.License
	for _, l := range r.s.licenses {
		if l.AppID == appID && l.Email == email && l.HardwareID == hardwareID {
			if found == nil || l.ID < found.ID {
				found = l
			}
		}
	}
	if found == nil {
		return nil, common.ErrorNotFound
	}
	c := *found
	return &c, nil
}

func (r *memLicenses) FindLatestOccupied(ctx context.Context, appID int64, email string) (*models.License, error) {
	err := r.enter("Licenses.FindLatestOccupied")
	defer r.s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var found *models.License
	for _, l := range r.s.licenses {
		if l.AppID != appID || l.Email != email || l.Free() {
			continue
		}
		if found == nil || l.UpdatedAt.After(found.UpdatedAt) ||
			(l.UpdatedAt.Equal(found.UpdatedAt) && l.ID > found.ID) {
			found = l
		}
	}
	if found == nil {
		return nil, common.ErrorNotFound
	}
	c := *found
	return &c, nil
}

func (r *memLicenses) ListByPair(ctx context.Context, appID int64, email string) ([]*models.License, error) {
	err := r.enter("Licenses.ListByPair")
	defer r.s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var out []*models.License
	for _, l := range r.s.licenses {
		if l.AppID == appID && l.Email == email {
			c := *l
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memLicenses) CountOccupied(ctx context.Context, appID int64, email string) (int, error) {
	err := r.enter("Licenses.CountOccupied")
	defer r.s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, l := range r.s.licenses {
		if l.AppID == appID && l.Email == email && l.Occupied() {
			n++
		}
	}
	return n, nil
}

func (r *memLicenses) ClaimFree(ctx context.Context, in *models.License, now time.Time) (int64, error) {
	err := r.enter("Licenses.ClaimFree")
	defer r.s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	var target *models.License
	for _, l := range r.s.licenses {
		if l.AppID != in.AppID || l.Email != in.Email || l.Occupied() {
			continue
		}
		if target == nil || l.UpdatedAt.After(target.UpdatedAt) ||
			(l.UpdatedAt.Equal(target.UpdatedAt) && l.ID > target.ID) {
			target = l
		}
	}
	if target == nil {
		return 0, common.ErrorNotFound
	}
	target.HardwareID = in.HardwareID
	target.LicenseKey = in.LicenseKey
	target.AppName = in.AppName
	if target.ActivatedAt == nil {
		t := now
		target.ActivatedAt = &t
	}
	target.UpdatedAt = now
	return target.ID, nil
}

func (r *memLicenses) Insert(ctx context.Context, in *models.License, now time.Time) (int64, error) {
	err := r.enter("Licenses.Insert")
	defer r.s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	for _, l := range r.s.licenses {
		if l.AppID == in.AppID && l.Email == in.Email && l.HardwareID == in.HardwareID {
			return 0, fmt.Errorf("db error: %w", &pgconn.PgError{Code: "23505"})
		}
	}
	r.s.nextLicense++
	c := *in
	c.ID = r.s.nextLicense
	t := now
	c.ActivatedAt = &t
	c.CreatedAt = now
	c.UpdatedAt = now
	r.s.licenses[c.ID] = &c
	return c.ID, nil
}

func (r *memLicenses) DeleteFree(ctx context.Context, appID int64, email string) (int64, error) {
	err := r.enter("Licenses.DeleteFree")
	defer r.s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	var n int64
	for id, l := range r.s.licenses {
		if l.AppID == appID && l.Email == email && l.Free() {
			delete(r.s.licenses, id)
			n++
		}
	}
	return n, nil
}

func (r *memLicenses) Clear(ctx context.Context, id int64, now time.Time) error {
	err := r.enter("Licenses.Clear")
	defer r.s.mu.Unlock()
	if err != nil {
		return err
	}
	l, ok := r.s.licenses[id]
	if !ok {
		return common.ErrorNotFound
	}
	l.HardwareID = ""
	l.ActivatedAt = nil
	l.UpdatedAt = now
	return nil
}

// --- activations ---

type memActivations struct{ s *memStore }

func (r *memActivations) RecentDenied(ctx context.Context, since time.Time, limit int) ([]*models.ActivationAttempt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("Activations.RecentDenied"); err != nil {
		return nil, err
	}
	var out []*models.ActivationAttempt
	for _, a := range r.s.activations {
		if a.Status == common.ActivationDenied && !a.CreatedAt.Before(since) {
			c := *a
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- integrity ---

type memIntegrity struct{ s *memStore }

func (r *memIntegrity) userExists(id int64) bool {
	for _, u := range r.s.users {
		if u.ID == id {
			return true
		}
	}
	return false
}

func (r *memIntegrity) OrphanedApplicationOwners(ctx context.Context) ([]*models.OrphanedOwner, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("Integrity.OrphanedApplicationOwners"); err != nil {
		return nil, err
	}
	var out []*models.OrphanedOwner
	for _, a := range r.s.apps {
		if a.OwnerID != nil && !r.userExists(*a.OwnerID) {
			out = append(out, &models.OrphanedOwner{AppID: a.ID, AppName: a.Name, OwnerID: *a.OwnerID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppID < out[j].AppID })
	return out, nil
}

func (r *memIntegrity) PaymentsWithBadUser(ctx context.Context) ([]*models.PaymentFinding, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("Integrity.PaymentsWithBadUser"); err != nil {
		return nil, err
	}
	var out []*models.PaymentFinding
	for _, p := range r.s.payments {
		if p.Status == common.PaymentApproved && p.UserID != nil && !r.userExists(*p.UserID) {
			out = append(out, &models.PaymentFinding{PaymentID: p.PaymentID, AppID: p.AppID, UserID: *p.UserID, PayerEmail: p.PayerEmail})
		}
	}
	return out, nil
}

func (r *memIntegrity) PriceWithoutDeliverable(ctx context.Context) ([]*models.DeliverableFinding, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("Integrity.PriceWithoutDeliverable"); err != nil {
		return nil, err
	}
	var out []*models.DeliverableFinding
	for _, a := range r.s.apps {
		if a.Price > 0 && strings.TrimSpace(a.ExecutableURL) == "" {
			out = append(out, &models.DeliverableFinding{AppID: a.ID, AppName: a.Name, Price: a.Price, ExecutableURL: a.ExecutableURL})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppID < out[j].AppID })
	return out, nil
}

func (r *memIntegrity) LicensesWithBadUser(ctx context.Context, limit int) ([]*models.LicenseFinding, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("Integrity.LicensesWithBadUser"); err != nil {
		return nil, err
	}
	var out []*models.LicenseFinding
	for _, l := range r.s.licenses {
		if !r.userExists(l.UserID) {
			out = append(out, &models.LicenseFinding{LicenseID: l.ID, UserID: l.UserID, AppID: l.AppID, Email: l.Email})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LicenseID < out[j].LicenseID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- clock ---

// stepClock returns a strictly increasing time on every call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}
