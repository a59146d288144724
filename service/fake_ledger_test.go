package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"grainflow/events"
	"grainflow/models"
)

var errInjected = errors.New("injected storage failure")

// fakeLedger is an in-memory ledger with unit-of-work semantics. A unit of work holds
// the ledger lock from Begin until Commit or Rollback; Rollback restores the snapshot
// taken at Begin.
type fakeLedger struct {
	mu sync.Mutex

	nextWalletID int64
	nextTxID     int64
	nextLogID    int64

	wallets   map[int64]*models.Wallet
	byUser    map[int64]int64
	journal   []*models.Transaction
	silo      models.Silo
	cycleLogs []*models.CycleLog
	published []events.Event

	// bus, when set, receives committed events the way the real unit of work flushes them
	bus *events.Bus

	calls  map[string]int
	failAt map[string]int
	begins int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		wallets: make(map[int64]*models.Wallet),
		byUser:  make(map[int64]int64),
		silo:    models.Silo{ID: models.SiloID},
		calls:   make(map[string]int),
		failAt:  make(map[string]int),
	}
}

// failOnCall makes the nth call (1-based) of a repository method fail
func (l *fakeLedger) failOnCall(method string, n int) {
	l.failAt[method] = n
}

func (l *fakeLedger) check(method string) error {
	l.calls[method]++
	if n, ok := l.failAt[method]; ok && l.calls[method] == n {
		return errInjected
	}
	return nil
}

func (l *fakeLedger) Create() UnitOfWork {
	return &fakeUnitOfWork{ledger: l}
}

// seedWallet creates a wallet whose balance is backed by a single EARN entry
func (l *fakeLedger) seedWallet(userID, balance, totalHarvested int64, lastActivity time.Time) *models.Wallet {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextWalletID++
	w := &models.Wallet{
		ID:             l.nextWalletID,
		UserID:         userID,
		Balance:        balance,
		TotalHarvested: totalHarvested,
		LastActivityAt: lastActivity,
		CreatedAt:      lastActivity,
		UpdatedAt:      lastActivity,
	}
	l.wallets[w.ID] = w
	l.byUser[userID] = w.ID

	if balance > 0 {
		l.nextTxID++
		l.journal = append(l.journal, &models.Transaction{
			ID:        l.nextTxID,
			WalletID:  w.ID,
			Amount:    balance,
			Direction: models.DirectionEarn,
			Reason:    models.ReasonContentRead,
			CreatedAt: lastActivity,
		})
	}
	copied := *w
	return &copied
}

func (l *fakeLedger) setSilo(balance int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.silo.TotalBalance = balance
	l.silo.TotalComposted = balance
}

func (l *fakeLedger) wallet(userID int64) *models.Wallet {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.byUser[userID]
	if !ok {
		return nil
	}
	copied := *l.wallets[id]
	return &copied
}

func (l *fakeLedger) siloState() models.Silo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.silo
}

func (l *fakeLedger) logs() []*models.CycleLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*models.CycleLog(nil), l.cycleLogs...)
}

func (l *fakeLedger) entries(walletID int64) []*models.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.Transaction
	for _, tx := range l.journal {
		if tx.WalletID == walletID {
			out = append(out, tx)
		}
	}
	return out
}

func (l *fakeLedger) publishedEvents() []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]events.Event(nil), l.published...)
}

// journalBalance recomputes a wallet balance from its entries
func (l *fakeLedger) journalBalance(walletID int64) int64 {
	var total int64
	for _, tx := range l.entries(walletID) {
		total += tx.SignedAmount()
	}
	return total
}

type ledgerSnapshot struct {
	wallets      map[int64]models.Wallet
	byUser       map[int64]int64
	journalLen   int
	silo         models.Silo
	logsLen      int
	nextWalletID int64
}

func (l *fakeLedger) snapshot() ledgerSnapshot {
	s := ledgerSnapshot{
		wallets:      make(map[int64]models.Wallet, len(l.wallets)),
		byUser:       make(map[int64]int64, len(l.byUser)),
		journalLen:   len(l.journal),
		silo:         l.silo,
		logsLen:      len(l.cycleLogs),
		nextWalletID: l.nextWalletID,
	}
	for id, w := range l.wallets {
		s.wallets[id] = *w
	}
	for user, id := range l.byUser {
		s.byUser[user] = id
	}
	return s
}

func (l *fakeLedger) restore(s ledgerSnapshot) {
	l.wallets = make(map[int64]*models.Wallet, len(s.wallets))
	for id, w := range s.wallets {
		copied := w
		l.wallets[id] = &copied
	}
	l.byUser = s.byUser
	l.journal = l.journal[:s.journalLen]
	l.silo = s.silo
	l.cycleLogs = l.cycleLogs[:s.logsLen]
	l.nextWalletID = s.nextWalletID
}

type fakeUnitOfWork struct {
	ledger   *fakeLedger
	active   bool
	snapshot ledgerSnapshot
	pending  []events.Event
}

func (u *fakeUnitOfWork) Begin(ctx context.Context) error {
	u.ledger.mu.Lock()
	u.ledger.begins++
	if err := u.ledger.check("Begin"); err != nil {
		u.ledger.mu.Unlock()
		return err
	}
	u.snapshot = u.ledger.snapshot()
	u.active = true
	return nil
}

func (u *fakeUnitOfWork) Commit() error {
	if !u.active {
		return errors.New("no transaction to commit")
	}
	u.active = false
	if err := u.ledger.check("Commit"); err != nil {
		u.ledger.restore(u.snapshot)
		u.pending = nil
		u.ledger.mu.Unlock()
		return err
	}
	committed := u.pending
	u.ledger.published = append(u.ledger.published, committed...)
	u.pending = nil
	bus := u.ledger.bus
	u.ledger.mu.Unlock()

	if bus != nil {
		for _, event := range committed {
			bus.Emit(context.Background(), event)
		}
	}
	return nil
}

func (u *fakeUnitOfWork) Rollback() error {
	if !u.active {
		return nil
	}
	u.active = false
	u.ledger.restore(u.snapshot)
	u.pending = nil
	u.ledger.mu.Unlock()
	return nil
}

func (u *fakeUnitOfWork) WalletRepository() WalletRepository           { return fakeWallets{u.ledger} }
func (u *fakeUnitOfWork) TransactionRepository() TransactionRepository { return fakeJournal{u.ledger} }
func (u *fakeUnitOfWork) SiloRepository() SiloRepository               { return fakeSilo{u.ledger} }
func (u *fakeUnitOfWork) CycleLogRepository() CycleLogRepository       { return fakeCycleLogs{u.ledger} }
func (u *fakeUnitOfWork) EventBus() EventPublisher                     { return u }

func (u *fakeUnitOfWork) Publish(event events.Event) {
	u.pending = append(u.pending, event)
}

// The fake repositories run with the ledger lock already held by the unit of work.

type fakeWallets struct{ l *fakeLedger }

func (r fakeWallets) copyOf(id int64) *models.Wallet {
	w, ok := r.l.wallets[id]
	if !ok {
		return nil
	}
	copied := *w
	return &copied
}

func (r fakeWallets) GetByUserID(ctx context.Context, userID int64) (*models.Wallet, error) {
	if err := r.l.check("GetByUserID"); err != nil {
		return nil, err
	}
	id, ok := r.l.byUser[userID]
	if !ok {
		return nil, nil
	}
	return r.copyOf(id), nil
}

func (r fakeWallets) GetOrCreateForUpdate(ctx context.Context, userID int64) (*models.Wallet, bool, error) {
	if err := r.l.check("GetOrCreateForUpdate"); err != nil {
		return nil, false, err
	}
	if id, ok := r.l.byUser[userID]; ok {
		return r.copyOf(id), false, nil
	}
	r.l.nextWalletID++
	now := time.Now().UTC()
	w := &models.Wallet{ID: r.l.nextWalletID, UserID: userID, LastActivityAt: now, CreatedAt: now, UpdatedAt: now}
	r.l.wallets[w.ID] = w
	r.l.byUser[userID] = w.ID
	return r.copyOf(w.ID), true, nil
}

func (r fakeWallets) GetForUpdate(ctx context.Context, walletID int64) (*models.Wallet, error) {
	if err := r.l.check("GetForUpdate"); err != nil {
		return nil, err
	}
	return r.copyOf(walletID), nil
}

func (r fakeWallets) ApplyHarvest(ctx context.Context, walletID int64, amount int64, at time.Time) (*models.Wallet, error) {
	if err := r.l.check("ApplyHarvest"); err != nil {
		return nil, err
	}
	w := r.l.wallets[walletID]
	w.Balance += amount
	w.TotalHarvested += amount
	w.LastActivityAt = at
	w.Version++
	return r.copyOf(walletID), nil
}

func (r fakeWallets) ApplySpend(ctx context.Context, walletID int64, amount int64, at time.Time) (*models.Wallet, error) {
	if err := r.l.check("ApplySpend"); err != nil {
		return nil, err
	}
	w := r.l.wallets[walletID]
	if w.Balance < amount {
		return nil, nil
	}
	w.Balance -= amount
	w.TotalPlanted += amount
	w.LastActivityAt = at
	w.Version++
	return r.copyOf(walletID), nil
}

func (r fakeWallets) ApplyCompost(ctx context.Context, walletID int64, amount int64, at time.Time) (*models.Wallet, error) {
	if err := r.l.check("ApplyCompost"); err != nil {
		return nil, err
	}
	w := r.l.wallets[walletID]
	if w.Balance < amount {
		return nil, nil
	}
	w.Balance -= amount
	w.TotalComposted += amount
	stamped := at
	w.LastCompostedAt = &stamped
	w.Version++
	return r.copyOf(walletID), nil
}

func (r fakeWallets) ApplyRedistribution(ctx context.Context, walletID int64, amount int64) (*models.Wallet, error) {
	if err := r.l.check("ApplyRedistribution"); err != nil {
		return nil, err
	}
	w := r.l.wallets[walletID]
	w.Balance += amount
	w.TotalHarvested += amount
	w.Version++
	return r.copyOf(walletID), nil
}

func (r fakeWallets) sorted(keep func(*models.Wallet) bool) []*models.Wallet {
	var out []*models.Wallet
	for id, w := range r.l.wallets {
		if keep(w) {
			out = append(out, r.copyOf(id))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r fakeWallets) ListCompostCandidates(ctx context.Context, inactiveBefore time.Time, minimumBalance int64) ([]*models.Wallet, error) {
	if err := r.l.check("ListCompostCandidates"); err != nil {
		return nil, err
	}
	return r.sorted(func(w *models.Wallet) bool {
		return !w.InactivityAnchor().After(inactiveBefore) && w.Balance >= minimumBalance && w.Balance > 0
	}), nil
}

func (r fakeWallets) ListRedistributionEligible(ctx context.Context, minimumActivity int64) ([]*models.Wallet, error) {
	if err := r.l.check("ListRedistributionEligible"); err != nil {
		return nil, err
	}
	if minimumActivity < 1 {
		minimumActivity = 1
	}
	return r.sorted(func(w *models.Wallet) bool {
		return w.TotalHarvested >= minimumActivity
	}), nil
}

type fakeJournal struct{ l *fakeLedger }

func (r fakeJournal) Append(ctx context.Context, tx *models.Transaction) error {
	if err := r.l.check("Append"); err != nil {
		return err
	}
	r.l.nextTxID++
	tx.ID = r.l.nextTxID
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	copied := *tx
	r.l.journal = append(r.l.journal, &copied)
	return nil
}

func (r fakeJournal) SumEarnedSince(ctx context.Context, walletID int64, reason models.Reason, since time.Time) (int64, error) {
	if err := r.l.check("SumEarnedSince"); err != nil {
		return 0, err
	}
	var total int64
	for _, tx := range r.l.journal {
		if tx.WalletID == walletID && tx.Reason == reason && tx.Direction == models.DirectionEarn && !tx.CreatedAt.Before(since) {
			total += tx.Amount
		}
	}
	return total, nil
}

func (r fakeJournal) GetByWallet(ctx context.Context, walletID int64, limit int) ([]*models.Transaction, error) {
	if err := r.l.check("GetByWallet"); err != nil {
		return nil, err
	}
	var out []*models.Transaction
	for i := len(r.l.journal) - 1; i >= 0 && len(out) < limit; i-- {
		if r.l.journal[i].WalletID == walletID {
			copied := *r.l.journal[i]
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r fakeJournal) SumByDirection(ctx context.Context, walletID int64) (int64, int64, error) {
	if err := r.l.check("SumByDirection"); err != nil {
		return 0, 0, err
	}
	var earned, spent int64
	for _, tx := range r.l.journal {
		if tx.WalletID != walletID {
			continue
		}
		if tx.Direction == models.DirectionEarn {
			earned += tx.Amount
		} else {
			spent += tx.Amount
		}
	}
	return earned, spent, nil
}

type fakeSilo struct{ l *fakeLedger }

func (r fakeSilo) Get(ctx context.Context) (*models.Silo, error) {
	if err := r.l.check("SiloGet"); err != nil {
		return nil, err
	}
	silo := r.l.silo
	return &silo, nil
}

func (r fakeSilo) GetForUpdate(ctx context.Context) (*models.Silo, error) {
	if err := r.l.check("SiloGetForUpdate"); err != nil {
		return nil, err
	}
	silo := r.l.silo
	return &silo, nil
}

func (r fakeSilo) Credit(ctx context.Context, amount int64) (*models.Silo, error) {
	if err := r.l.check("SiloCredit"); err != nil {
		return nil, err
	}
	r.l.silo.TotalBalance += amount
	r.l.silo.TotalComposted += amount
	silo := r.l.silo
	return &silo, nil
}

func (r fakeSilo) Debit(ctx context.Context, amount int64) (*models.Silo, error) {
	if err := r.l.check("SiloDebit"); err != nil {
		return nil, err
	}
	if r.l.silo.TotalBalance < amount {
		return nil, nil
	}
	r.l.silo.TotalBalance -= amount
	silo := r.l.silo
	return &silo, nil
}

func (r fakeSilo) IncrementCycles(ctx context.Context) error {
	if err := r.l.check("IncrementCycles"); err != nil {
		return err
	}
	r.l.silo.TotalCycles++
	return nil
}

type fakeCycleLogs struct{ l *fakeLedger }

func (r fakeCycleLogs) Create(ctx context.Context, cycleLog *models.CycleLog) error {
	if err := r.l.check("CycleLogCreate"); err != nil {
		return err
	}
	r.l.nextLogID++
	cycleLog.ID = r.l.nextLogID
	copied := *cycleLog
	r.l.cycleLogs = append(r.l.cycleLogs, &copied)
	return nil
}

func (r fakeCycleLogs) GetLatest(ctx context.Context, kind models.CycleKind) (*models.CycleLog, error) {
	if err := r.l.check("GetLatest"); err != nil {
		return nil, err
	}
	for i := len(r.l.cycleLogs) - 1; i >= 0; i-- {
		if r.l.cycleLogs[i].Kind == kind {
			copied := *r.l.cycleLogs[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (r fakeCycleLogs) List(ctx context.Context, kind *models.CycleKind, limit int) ([]*models.CycleLog, error) {
	var out []*models.CycleLog
	for i := len(r.l.cycleLogs) - 1; i >= 0 && len(out) < limit; i-- {
		if kind == nil || r.l.cycleLogs[i].Kind == *kind {
			copied := *r.l.cycleLogs[i]
			out = append(out, &copied)
		}
	}
	return out, nil
}

// testClock is a settable clock for services under test
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
