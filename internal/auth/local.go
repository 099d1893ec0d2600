package auth

import (
	"context"
	"errors"

	"github.com/yourname/timetracker/internal"
	"github.com/yourname/timetracker/internal/storage"
)

// LocalAuthProvider resolves bearer tokens against the user records in
// storage. Suitable for development and single-node deployments.
type LocalAuthProvider struct {
	users  storage.UserRepository
	logger internal.Logger
}

func NewLocalAuthProvider(users storage.UserRepository, logger internal.Logger) *LocalAuthProvider {
	return &LocalAuthProvider{users: users, logger: logger}
}

func (a *LocalAuthProvider) ValidateTokenLocal(token string) (*internal.User, error) {
	user, err := a.users.GetUserByToken(context.Background(), token)
	if err != nil {
		a.logger.Warnf("invalid token")
		return nil, errors.New("invalid token")
	}
	return user, nil
}

func (a *LocalAuthProvider) ValidateTokenRemote(ctx context.Context, token string) (*internal.User, error) {
	a.logger.Warnf("ValidateTokenRemote not implemented in LocalAuthProvider")
	return nil, errors.New("not implemented in LocalAuthProvider")
}
