package ledger

import (
	"ArtBot/lib/sl"
	"ArtBot/storage"
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrNoSuchUser         = errors.New("no such user")
	ErrInsufficientCredit = errors.New("insufficient credit")
)

// Ledger owns credit balance mutation. No other component writes credits.
type Ledger struct {
	users storage.UserStorage
	log   *slog.Logger
}

func New(users storage.UserStorage, log *slog.Logger) *Ledger {
	return &Ledger{
		users: users,
		log:   log.With(sl.Module("ledger")),
	}
}

// Charge deducts one credit and returns the new balance. The balance never
// goes below zero and is never touched on a failed check.
//
// The read and the write are separate store operations: two concurrent
// charges for the same user can both observe the same starting balance and
// lose one decrement. The store's contract is last-writer-wins and this is
// accepted as best-effort accounting.
func (l *Ledger) Charge(userId int64) (int, error) {
	user, err := l.users.GetUser(userId)
	if err != nil {
		return 0, fmt.Errorf("fetching user: %w", err)
	}
	if user == nil {
		return 0, ErrNoSuchUser
	}
	if user.Credits <= 0 {
		return 0, ErrInsufficientCredit
	}

	newBalance := user.Credits - 1
	if err := l.users.SetCredits(userId, newBalance); err != nil {
		return 0, fmt.Errorf("writing balance: %w", err)
	}
	l.log.With(
		sl.User(userId),
		slog.Int("balance", newBalance),
	).Info("credit charged")
	return newBalance, nil
}
