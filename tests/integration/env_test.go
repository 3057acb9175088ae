package integration

import (
	"testing"

	"cashback-ledger/internal/service"

	"github.com/rs/zerolog"
)

const (
	testUserPct     = 0.6
	testReferralPct = 0.1
	testBonusPct    = 0.1
	testMinCashout  = int64(5000)
)

// testEnv wires all services against in-memory repositories.
type testEnv struct {
	wallets   *inMemoryWalletRepo
	ledgerLog *inMemoryLedgerRepo
	comms     *inMemoryCommissionRepo
	dlq       *inMemoryDeadLetterRepo
	requests  *inMemoryRequestRepo
	achs      *inMemoryAchievementRepo
	progress  *inMemoryProgressRepo
	rewards   *inMemoryRewardRepo
	users     *inMemoryUserRepo
	clicks    *inMemoryClickRepo
	cases     *inMemoryCaseRepo
	tokens    *inMemoryDeviceTokenRepo
	state     *inMemoryFeedStateRepo
	feed      *stubFeed
	publisher *capturingPublisher
	notifier  *capturingNotifier

	ledgerSvc  *service.LedgerServiceImpl
	reconciler *service.ReconcilerServiceImpl
	requestSvc *service.RequestServiceImpl
	engine     *service.AchievementServiceImpl
	rewardSvc  *service.RewardServiceImpl
	clickSvc   *service.ClickServiceImpl
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	e := &testEnv{
		wallets:   newInMemoryWalletRepo(),
		ledgerLog: newInMemoryLedgerRepo(),
		comms:     newInMemoryCommissionRepo(),
		dlq:       newInMemoryDeadLetterRepo(),
		requests:  newInMemoryRequestRepo(),
		achs:      newInMemoryAchievementRepo(),
		progress:  newInMemoryProgressRepo(),
		rewards:   newInMemoryRewardRepo(),
		users:     newInMemoryUserRepo(),
		clicks:    newInMemoryClickRepo(),
		cases:     newInMemoryCaseRepo(),
		tokens:    newInMemoryDeviceTokenRepo(),
		state:     newInMemoryFeedStateRepo(),
		feed:      &stubFeed{},
		publisher: &capturingPublisher{},
		notifier:  &capturingNotifier{},
	}

	transactor := newInMemoryTransactor()
	log := zerolog.Nop()

	notifSvc := service.NewNotificationService(e.tokens, e.notifier, log)
	e.ledgerSvc = service.NewLedgerService(e.wallets, e.ledgerLog, e.cases, transactor, notifSvc, log)
	e.reconciler = service.NewReconcilerService(
		e.feed, e.users, e.clicks, e.comms, e.dlq, e.state,
		e.ledgerSvc, e.publisher, testUserPct, testReferralPct, log,
	)
	e.requestSvc = service.NewRequestService(
		e.requests, e.wallets, e.ledgerLog, e.cases, transactor,
		notifSvc, e.publisher, testMinCashout, testBonusPct, log,
	)
	e.engine = service.NewAchievementService(e.achs, e.progress, e.rewards, transactor, notifSvc, log)
	e.rewardSvc = service.NewRewardService(e.rewards, e.achs, e.wallets, e.ledgerLog, transactor, notifSvc, log)
	e.clickSvc = service.NewClickService(e.clicks, e.publisher, log)

	return e
}
