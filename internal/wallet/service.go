package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/dropwise/dispatch/internal/apperr"
	"github.com/dropwise/dispatch/internal/identity"
	"github.com/dropwise/dispatch/internal/ledger"
	"github.com/dropwise/dispatch/internal/logging"
	"github.com/dropwise/dispatch/internal/payment"
)

// Policy holds the wallet defaults.
type Policy struct {
	// WelcomeBonus is the opening balance of customer and rider wallets.
	WelcomeBonus int64
}

// Service owns wallet balances. Every mutation runs under the wallet's lock.
type Service struct {
	repo    Repository
	locker  ledger.Locker
	gateway payment.Gateway
	policy  Policy
	logger  *slog.Logger
}

// NewService builds a wallet service instance.
func NewService(repo Repository, locker ledger.Locker, gateway payment.Gateway, policy Policy, logger *slog.Logger) *Service {
	if gateway == nil {
		gateway = payment.StaticGateway{}
	}
	return &Service{
		repo:    repo,
		locker:  locker,
		gateway: gateway,
		policy:  policy,
		logger:  logging.Component(logger, "wallet"),
	}
}

// GetOrCreate returns the actor's wallet, creating it with the opening
// balance for the actor's type when missing.
func (s *Service) GetOrCreate(ctx context.Context, actor identity.Actor) (Wallet, error) {
	w, err := s.repo.Get(ctx, actor.ID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return Wallet{}, err
	}

	unlock, err := s.locker.Lock(ctx, Key(actor.ID))
	if err != nil {
		return Wallet{}, err
	}
	defer unlock()
	return s.loadOrCreateLocked(ctx, actor)
}

// Get returns an existing wallet.
func (s *Service) Get(ctx context.Context, userID string) (Wallet, error) {
	return s.repo.Get(ctx, userID)
}

// Credit adds p.Amount to the actor's wallet.
func (s *Service) Credit(ctx context.Context, actor identity.Actor, p Posting) (Transaction, error) {
	return s.post(ctx, actor, TxCredit, p)
}

// Debit removes p.Amount from the actor's wallet. It fails with
// INSUFFICIENT_FUNDS, leaving the wallet untouched, when the balance is short.
func (s *Service) Debit(ctx context.Context, actor identity.Actor, p Posting) (Transaction, error) {
	return s.post(ctx, actor, TxDebit, p)
}

func (s *Service) post(ctx context.Context, actor identity.Actor, kind TxType, p Posting) (Transaction, error) {
	if p.Amount <= 0 {
		return Transaction{}, apperr.New(apperr.CodeInvalidAmount, "amount must be positive")
	}

	unlock, err := s.locker.Lock(ctx, Key(actor.ID))
	if err != nil {
		return Transaction{}, err
	}
	defer unlock()

	w, err := s.loadOrCreateLocked(ctx, actor)
	if err != nil {
		return Transaction{}, err
	}

	if prior, ok := w.findReference(kind, p.Reference); ok {
		s.logger.Info("wallet.posting_replayed",
			slog.String("user_id", actor.ID),
			slog.String("reference", p.Reference),
			slog.String("transaction_id", prior.ID),
		)
		return prior, nil
	}

	if kind == TxCredit && p.Amount > math.MaxInt64-w.Balance {
		return Transaction{}, apperr.New(apperr.CodeInvalidAmount, "credit would overflow the wallet balance")
	}
	if kind == TxDebit && w.Balance < p.Amount {
		return Transaction{}, apperr.New(apperr.CodeInsufficientFunds,
			fmt.Sprintf("insufficient funds: balance %d, required %d", w.Balance, p.Amount))
	}

	now := time.Now().UTC()
	tx := Transaction{
		ID:          uuid.NewString(),
		Type:        kind,
		Amount:      p.Amount,
		Description: p.Description,
		Timestamp:   now,
		Status:      StatusCompleted,
		DeliveryID:  p.DeliveryID,
		Reference:   p.Reference,
	}

	if kind == TxCredit {
		w.Balance += p.Amount
	} else {
		w.Balance -= p.Amount
	}
	w.Transactions = append([]Transaction{tx}, w.Transactions...)
	w.LastUpdated = now

	if err := s.repo.Save(ctx, w); err != nil {
		return Transaction{}, err
	}

	s.logger.Info("wallet."+string(kind),
		slog.String("user_id", actor.ID),
		slog.String("transaction_id", tx.ID),
		slog.Int64("amount", p.Amount),
		slog.Int64("balance", w.Balance),
	)
	return tx, nil
}

// TopUpInput captures a wallet funding request.
type TopUpInput struct {
	Amount        int64
	PaymentMethod string
	Card          *payment.Card
}

// TopUp charges the payment method and credits the wallet.
func (s *Service) TopUp(ctx context.Context, actor identity.Actor, in TopUpInput) (Wallet, Transaction, error) {
	ref := uuid.NewString()
	if in.Amount <= 0 {
		return Wallet{}, Transaction{}, apperr.New(apperr.CodeInvalidAmount, "amount must be positive")
	}
	if in.Amount > MaxAmount {
		return Wallet{}, Transaction{}, apperr.New(apperr.CodeInvalidAmount, fmt.Sprintf("amount must not exceed %d", MaxAmount))
	}
	auth, err := payment.Process(ctx, s.gateway, payment.Charge{
		Reference: ref,
		Amount:    in.Amount,
		Method:    in.PaymentMethod,
		Card:      in.Card,
	})
	if err != nil {
		return Wallet{}, Transaction{}, err
	}

	tx, err := s.Credit(ctx, actor, Posting{
		Amount:      in.Amount,
		Description: "Wallet top-up",
		Reference:   "topup:" + auth.Reference,
	})
	if err != nil {
		return Wallet{}, Transaction{}, err
	}
	w, err := s.repo.Get(ctx, actor.ID)
	if err != nil {
		return Wallet{}, Transaction{}, err
	}
	return w, tx, nil
}

// FindReference looks up a posting by type and reference.
func (s *Service) FindReference(ctx context.Context, userID string, kind TxType, ref string) (Transaction, bool, error) {
	w, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Transaction{}, false, nil
		}
		return Transaction{}, false, err
	}
	tx, ok := w.findReference(kind, ref)
	return tx, ok, nil
}

// History returns up to limit of the most recent transactions.
func (s *Service) History(ctx context.Context, actor identity.Actor, limit int) ([]Transaction, error) {
	w, err := s.GetOrCreate(ctx, actor)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(w.Transactions) {
		limit = len(w.Transactions)
	}
	return w.Transactions[:limit], nil
}

func (s *Service) loadOrCreateLocked(ctx context.Context, actor identity.Actor) (Wallet, error) {
	w, err := s.repo.Get(ctx, actor.ID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return Wallet{}, err
	}

	now := time.Now().UTC()
	w = Wallet{
		UserID:       actor.ID,
		Balance:      s.openingBalance(actor.Type),
		Currency:     Currency,
		Transactions: []Transaction{},
		CreatedAt:    now,
		LastUpdated:  now,
	}
	if err := s.repo.Save(ctx, w); err != nil {
		return Wallet{}, err
	}
	s.logger.Info("wallet.created",
		slog.String("user_id", actor.ID),
		slog.String("user_type", string(actor.Type)),
		slog.Int64("balance", w.Balance),
	)
	return w, nil
}

func (s *Service) openingBalance(t identity.UserType) int64 {
	switch t {
	case identity.TypeCustomer, identity.TypeRider:
		return s.policy.WelcomeBonus
	default:
		return 0
	}
}
