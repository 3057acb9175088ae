package service

import (
	"context"
	"errors"
	"testing"

	"cashback-ledger/internal/core/ports"
	"cashback-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/mock/gomock"
)

type stubTokenRepo struct {
	tokens map[uuid.UUID][]string
	err    error
}

func (s *stubTokenRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.tokens[userID], nil
}

func TestNotifyUser_SendsToAllDevices(t *testing.T) {
	ctrl := gomock.NewController(t)
	userID := uuid.New()

	tokens := &stubTokenRepo{tokens: map[uuid.UUID][]string{
		userID: {"tok-1", "tok-2"},
	}}
	notifier := mocks.NewMockNotifier(ctrl)

	msg := ports.Notification{Title: "Cashback received", Body: "12.34 RON", Type: "commission-paid"}
	notifier.EXPECT().Send(gomock.Any(), msg, []string{"tok-1", "tok-2"}).Return(nil)

	svc := NewNotificationService(tokens, notifier, zerolog.Nop())
	svc.NotifyUser(context.Background(), userID, msg)
}

func TestNotifyUser_NoDevicesSkipsSend(t *testing.T) {
	ctrl := gomock.NewController(t)

	tokens := &stubTokenRepo{}
	notifier := mocks.NewMockNotifier(ctrl)
	// No EXPECT: any Send call fails the test.

	svc := NewNotificationService(tokens, notifier, zerolog.Nop())
	svc.NotifyUser(context.Background(), uuid.New(), ports.Notification{Title: "t"})
}

func TestNotifyUser_SwallowsDeliveryFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	userID := uuid.New()

	tokens := &stubTokenRepo{tokens: map[uuid.UUID][]string{userID: {"tok-1"}}}
	notifier := mocks.NewMockNotifier(ctrl)
	notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("provider down"))

	svc := NewNotificationService(tokens, notifier, zerolog.Nop())
	svc.NotifyUser(context.Background(), userID, ports.Notification{Title: "t"})
}

func TestNotifyUser_SwallowsTokenLookupFailure(t *testing.T) {
	ctrl := gomock.NewController(t)

	tokens := &stubTokenRepo{err: errors.New("db down")}
	notifier := mocks.NewMockNotifier(ctrl)

	svc := NewNotificationService(tokens, notifier, zerolog.Nop())
	svc.NotifyUser(context.Background(), uuid.New(), ports.Notification{Title: "t"})
}
