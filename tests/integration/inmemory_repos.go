package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cashback-ledger/internal/core/domain"
	"cashback-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Transactor ---

// inMemoryTransactor serializes transactions behind one mutex, standing in
// for the row locks the real engine takes with FOR UPDATE.
type inMemoryTransactor struct {
	mu sync.Mutex
}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &lockedTx{release: t.mu.Unlock}, nil
}

// lockedTx is a pgx.Tx that releases the transactor's lock on first
// Commit/Rollback.
type lockedTx struct {
	once    sync.Once
	release func()
}

func (t *lockedTx) done() {
	t.once.Do(t.release)
}

func (t *lockedTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *lockedTx) Commit(ctx context.Context) error          { t.done(); return nil }
func (t *lockedTx) Rollback(ctx context.Context) error        { t.done(); return nil }
func (t *lockedTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *lockedTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *lockedTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *lockedTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *lockedTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *lockedTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *lockedTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *lockedTx) Conn() *pgx.Conn { return nil }

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wallets[w.UserID]; ok {
		return nil
	}
	cp := *w
	r.wallets[w.UserID] = &cp
	return nil
}

func (r *inMemoryWalletRepo) Get(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[userID]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	return r.Get(ctx, userID)
}

func (r *inMemoryWalletRepo) SetPending(ctx context.Context, tx pgx.Tx, userID uuid.UUID, pending int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok {
		return fmt.Errorf("wallet %s not found", userID)
	}
	w.CashbackPending = pending
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *inMemoryWalletRepo) AddApproved(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok {
		return fmt.Errorf("wallet %s not found", userID)
	}
	if w.CashbackApproved+delta < 0 {
		return fmt.Errorf("approved balance would go negative")
	}
	w.CashbackApproved += delta
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *inMemoryWalletRepo) AddPoints(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok {
		return fmt.Errorf("wallet %s not found", userID)
	}
	if w.PointsApproved+delta < 0 {
		return fmt.Errorf("points balance would go negative")
	}
	w.PointsApproved += delta
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// --- In-Memory Ledger Repo ---

type inMemoryLedgerRepo struct {
	mu          sync.RWMutex
	entries     []domain.LedgerEntry
	keys        map[string]bool
	appendCalls int
}

func newInMemoryLedgerRepo() *inMemoryLedgerRepo {
	return &inMemoryLedgerRepo{keys: make(map[string]bool)}
}

func ledgerKey(userID uuid.UUID, sourceTxID string, entryType domain.LedgerEntryType) string {
	return userID.String() + "|" + sourceTxID + "|" + string(entryType)
}

func (r *inMemoryLedgerRepo) Exists(ctx context.Context, userID uuid.UUID, sourceTxID string, entryType domain.LedgerEntryType) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keys[ledgerKey(userID, sourceTxID, entryType)], nil
}

func (r *inMemoryLedgerRepo) Append(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendCalls++
	key := ledgerKey(entry.UserID, entry.SourceTxID, entry.Type)
	if r.keys[key] {
		return false, nil
	}
	r.keys[key] = true
	r.entries = append(r.entries, *entry)
	return true, nil
}

func (r *inMemoryLedgerRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.LedgerEntry
	for _, e := range r.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- In-Memory Commission Repo ---

type inMemoryCommissionRepo struct {
	mu          sync.RWMutex
	commissions map[uuid.UUID]map[string]domain.Commission
	writes      int
}

func newInMemoryCommissionRepo() *inMemoryCommissionRepo {
	return &inMemoryCommissionRepo{commissions: make(map[uuid.UUID]map[string]domain.Commission)}
}

func (r *inMemoryCommissionRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Commission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Commission
	for _, c := range r.commissions[userID] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *inMemoryCommissionRepo) UpsertBatch(ctx context.Context, userID uuid.UUID, commissions []domain.Commission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byOrigin, ok := r.commissions[userID]
	if !ok {
		byOrigin = make(map[string]domain.Commission)
		r.commissions[userID] = byOrigin
	}
	for _, c := range commissions {
		byOrigin[c.OriginID] = c
		r.writes++
	}
	return nil
}

// writeCount reports how many commission rows were written in total.
func (r *inMemoryCommissionRepo) writeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writes
}

// --- In-Memory Dead Letter Repo ---

type inMemoryDeadLetterRepo struct {
	mu     sync.RWMutex
	parked map[string]*domain.DeadLetterCommission
}

func newInMemoryDeadLetterRepo() *inMemoryDeadLetterRepo {
	return &inMemoryDeadLetterRepo{parked: make(map[string]*domain.DeadLetterCommission)}
}

func (r *inMemoryDeadLetterRepo) Park(ctx context.Context, dl *domain.DeadLetterCommission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *dl
	r.parked[dl.OriginID] = &cp
	return nil
}

// --- In-Memory Request Repo ---

type inMemoryRequestRepo struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]*domain.TxRequest
}

func newInMemoryRequestRepo() *inMemoryRequestRepo {
	return &inMemoryRequestRepo{requests: make(map[uuid.UUID]*domain.TxRequest)}
}

func (r *inMemoryRequestRepo) Create(ctx context.Context, req *domain.TxRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *inMemoryRequestRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.TxRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (r *inMemoryRequestRepo) HasOtherPending(ctx context.Context, tx pgx.Tx, userID uuid.UUID, excludeID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, req := range r.requests {
		if req.UserID == userID && req.Status == domain.RequestStatusPending && req.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *inMemoryRequestRepo) SetStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.RequestStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return fmt.Errorf("request %s not found", id)
	}
	req.Status = status
	req.UpdatedAt = time.Now().UTC()
	return nil
}

// --- In-Memory Achievement Repo ---

type inMemoryAchievementRepo struct {
	mu           sync.RWMutex
	achievements map[uuid.UUID]domain.Achievement
}

func newInMemoryAchievementRepo() *inMemoryAchievementRepo {
	return &inMemoryAchievementRepo{achievements: make(map[uuid.UUID]domain.Achievement)}
}

func (r *inMemoryAchievementRepo) add(a domain.Achievement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.achievements[a.ID] = a
}

func (r *inMemoryAchievementRepo) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.achievements, id)
}

func (r *inMemoryAchievementRepo) ListByType(ctx context.Context, eventType domain.EventType) ([]domain.Achievement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Achievement
	for _, a := range r.achievements {
		if a.Type == eventType {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r *inMemoryAchievementRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Achievement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.achievements[id]
	if !ok {
		return nil, nil
	}
	cp := a
	return &cp, nil
}

// --- In-Memory Progress Repo ---

type progressKey struct {
	userID        uuid.UUID
	achievementID uuid.UUID
}

type inMemoryProgressRepo struct {
	mu          sync.RWMutex
	progress    map[progressKey]*domain.Progress
	countedKeys map[string]bool
}

func newInMemoryProgressRepo() *inMemoryProgressRepo {
	return &inMemoryProgressRepo{
		progress:    make(map[progressKey]*domain.Progress),
		countedKeys: make(map[string]bool),
	}
}

func (r *inMemoryProgressRepo) Get(ctx context.Context, userID, achievementID uuid.UUID) (*domain.Progress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.progress[progressKey{userID, achievementID}]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// Increment matches the SQL conflict arm: the stored count is read and
// bumped under the repo lock, and an achieved row blocks the increment.
func (r *inMemoryProgressRepo) Increment(ctx context.Context, tx pgx.Tx, userID, achievementID uuid.UUID) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := progressKey{userID, achievementID}
	existing, ok := r.progress[key]
	if !ok {
		r.progress[key] = &domain.Progress{UserID: userID, AchievementID: achievementID, CurrentCount: 1}
		return 1, true, nil
	}
	if existing.Achieved {
		return 0, false, nil
	}
	existing.CurrentCount++
	return existing.CurrentCount, true, nil
}

// MarkAchieved keeps the first achieved_at, like the SQL latch update.
func (r *inMemoryProgressRepo) MarkAchieved(ctx context.Context, tx pgx.Tx, userID, achievementID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.progress[progressKey{userID, achievementID}]
	if !ok {
		return fmt.Errorf("progress not found")
	}
	if !existing.Achieved {
		existing.Achieved = true
		existing.AchievedAt = &at
	}
	return nil
}

func (r *inMemoryProgressRepo) AddCountedKey(ctx context.Context, tx pgx.Tx, userID, achievementID uuid.UUID, entityKey string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := userID.String() + "|" + achievementID.String() + "|" + entityKey
	if r.countedKeys[key] {
		return false, nil
	}
	r.countedKeys[key] = true
	return true, nil
}

// --- In-Memory Reward Repo ---

type inMemoryRewardRepo struct {
	mu      sync.RWMutex
	rewards map[progressKey]*domain.RewardRequest
}

func newInMemoryRewardRepo() *inMemoryRewardRepo {
	return &inMemoryRewardRepo{rewards: make(map[progressKey]*domain.RewardRequest)}
}

func (r *inMemoryRewardRepo) Upsert(ctx context.Context, tx pgx.Tx, req *domain.RewardRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *req
	r.rewards[progressKey{req.UserID, req.AchievementID}] = &cp
	return nil
}

func (r *inMemoryRewardRepo) ListPending(ctx context.Context, limit int) ([]domain.RewardRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.RewardRequest
	for _, req := range r.rewards {
		if req.Status == domain.RewardStatusPending {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *inMemoryRewardRepo) SetStatus(ctx context.Context, userID, achievementID uuid.UUID, status domain.RewardStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.rewards[progressKey{userID, achievementID}]
	if !ok {
		return fmt.Errorf("reward request not found")
	}
	req.Status = status
	req.Reason = reason
	req.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *inMemoryRewardRepo) get(userID, achievementID uuid.UUID) *domain.RewardRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.rewards[progressKey{userID, achievementID}]
	if !ok {
		return nil
	}
	cp := *req
	return &cp
}

// --- In-Memory User Repo ---

type inMemoryUserRepo struct {
	mu        sync.RWMutex
	byCode    map[string]domain.User
	referrals map[uuid.UUID]domain.Referral
}

func newInMemoryUserRepo() *inMemoryUserRepo {
	return &inMemoryUserRepo{
		byCode:    make(map[string]domain.User),
		referrals: make(map[uuid.UUID]domain.Referral),
	}
}

func (r *inMemoryUserRepo) addUser(u domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCode[u.FeedCode] = u
}

func (r *inMemoryUserRepo) addReferral(ref domain.Referral) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.referrals[ref.UserID] = ref
}

func (r *inMemoryUserRepo) GetByFeedCode(ctx context.Context, feedCode string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byCode[feedCode]
	if !ok {
		return nil, nil
	}
	cp := u
	return &cp, nil
}

func (r *inMemoryUserRepo) GetReferral(ctx context.Context, userID uuid.UUID) (*domain.Referral, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.referrals[userID]
	if !ok {
		return nil, nil
	}
	cp := ref
	return &cp, nil
}

// --- In-Memory Click Repo ---

type inMemoryClickRepo struct {
	mu     sync.RWMutex
	clicks []domain.Click
}

func newInMemoryClickRepo() *inMemoryClickRepo {
	return &inMemoryClickRepo{}
}

func (r *inMemoryClickRepo) Record(ctx context.Context, click *domain.Click) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clicks = append(r.clicks, *click)
	return nil
}

func (r *inMemoryClickRepo) FindUnique(ctx context.Context, ipAddress, programID string) (*domain.Click, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *domain.Click
	for i := range r.clicks {
		c := r.clicks[i]
		if c.IPAddress == ipAddress && c.ProgramID == programID {
			if found != nil {
				return nil, nil
			}
			found = &c
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

// --- In-Memory Case Repo ---

type inMemoryCaseRepo struct {
	mu    sync.RWMutex
	cases map[string]*domain.CharityCase
}

func newInMemoryCaseRepo() *inMemoryCaseRepo {
	return &inMemoryCaseRepo{cases: make(map[string]*domain.CharityCase)}
}

func (r *inMemoryCaseRepo) add(c domain.CharityCase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := c
	r.cases[c.ID] = &cp
}

func (r *inMemoryCaseRepo) Get(ctx context.Context, id string) (*domain.CharityCase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *inMemoryCaseRepo) AddFunds(ctx context.Context, tx pgx.Tx, id string, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[id]
	if !ok {
		return fmt.Errorf("case %s not found", id)
	}
	c.Funds += delta
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// --- In-Memory Device Token Repo ---

type inMemoryDeviceTokenRepo struct {
	mu     sync.RWMutex
	tokens map[uuid.UUID][]string
}

func newInMemoryDeviceTokenRepo() *inMemoryDeviceTokenRepo {
	return &inMemoryDeviceTokenRepo{tokens: make(map[uuid.UUID][]string)}
}

func (r *inMemoryDeviceTokenRepo) add(userID uuid.UUID, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[userID] = append(r.tokens[userID], token)
}

func (r *inMemoryDeviceTokenRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.tokens[userID]...), nil
}

// --- In-Memory Feed State Repo ---

type inMemoryFeedStateRepo struct {
	mu    sync.RWMutex
	since *time.Time
}

func newInMemoryFeedStateRepo() *inMemoryFeedStateRepo {
	return &inMemoryFeedStateRepo{}
}

func (r *inMemoryFeedStateRepo) GetSince(ctx context.Context) (*time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.since == nil {
		return nil, nil
	}
	cp := *r.since
	return &cp, nil
}

func (r *inMemoryFeedStateRepo) SetSince(ctx context.Context, since time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.since = &since
	return nil
}

// --- Collaborator stubs ---

// stubFeed serves a fixed commission set and records the since marker of
// every fetch.
type stubFeed struct {
	mu          sync.Mutex
	commissions []ports.FeedCommission
	err         error
	sinceSeen   []*time.Time
}

func (f *stubFeed) FetchCommissions(ctx context.Context, since *time.Time) ([]ports.FeedCommission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinceSeen = append(f.sinceSeen, since)
	if f.err != nil {
		return nil, f.err
	}
	return append([]ports.FeedCommission(nil), f.commissions...), nil
}

// capturingPublisher records published events.
type capturingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *capturingPublisher) Publish(ctx context.Context, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturingPublisher) byType(t domain.EventType) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// capturingNotifier records push sends.
type capturingNotifier struct {
	mu   sync.Mutex
	sent []ports.Notification
}

func (n *capturingNotifier) Send(ctx context.Context, msg ports.Notification, deviceTokens []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}
