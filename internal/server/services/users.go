// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login, and issuing/refreshing JWTs
// plus server-stored refresh tokens.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/logging"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/server/auth"
	"github.com/dmitrijs2005/altair/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/altair/internal/timex"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

// UserService provides authentication-related operations:
// - Register: create users
// - Login: verify credentials and mint tokens
// - RefreshToken: rotate refresh tokens and mint new access tokens
// - Authenticate: resolve an access token to an enabled user
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	clock                        timex.Clock
	logger                       logging.Logger
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

// UserServiceConfig carries the token settings of UserService.
type UserServiceConfig struct {
	SecretKey                    string
	AccessTokenValidityDuration  time.Duration
	RefreshTokenValidityDuration time.Duration
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, clock timex.Clock, logger logging.Logger, cfg UserServiceConfig) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		clock:                        clock,
		logger:                       logger.With("module", "users"),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// dummyHash is compared against when the user does not exist so unknown
// names cost as much as wrong passwords.
var dummyHash, _ = auth.HashPassword("altair-dummy-password")

// Register creates a new enabled user. The name is trimmed; a taken name
// yields a Duplicate conflict from the repository.
func (s *UserService) Register(ctx context.Context, userName, password string) (*models.User, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return nil, common.Validation("userName", "must not be empty")
	}
	if len(password) < auth.MinPasswordLength {
		return nil, common.Validation("password", fmt.Sprintf("must be at least %d characters", auth.MinPasswordLength))
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, common.Storage("hash password", err)
	}

	user := &models.User{ID: common.NewID().String(), UserName: userName, PasswordHash: hash}
	if err := s.repomanager.Users(s.db).Create(ctx, user); err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies credentials and, on success, returns a new TokenPair.
// Unknown names and wrong passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, userName, password string) (*TokenPair, error) {
	user, err := s.repomanager.Users(s.db).GetByUserName(ctx, strings.TrimSpace(userName))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			auth.CheckPassword(dummyHash, password)
			return nil, common.AuthError(common.ReasonInvalidCredentials, "invalid user name or password")
		}
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, common.AuthError(common.ReasonInvalidCredentials, "invalid user name or password")
	}
	if user.Disabled {
		return nil, common.AuthError(common.ReasonAccountDisabled, "account is disabled")
	}
	return s.generateTokenPair(ctx, user.ID, s.db)
}

// RefreshToken validates a refresh token, rotates it transactionally, and
// returns a fresh TokenPair. A token can be used once.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	repo := s.repomanager.RefreshTokens(s.db)

	token, err := repo.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.AuthError(common.ReasonUnauthorized, "unknown refresh token")
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	if token.Expires.Before(s.clock.Now()) {
		_ = repo.Delete(ctx, refreshToken)
		return nil, common.AuthError(common.ReasonTokenExpired, "refresh token expired")
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, token.UserID)
	if err != nil {
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	if user.Disabled {
		return nil, common.AuthError(common.ReasonAccountDisabled, "account is disabled")
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RefreshTokens(tx).Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, token.UserID, tx)
		return genErr
	}); err != nil {
		return nil, err
	}
	return pair, nil
}

// Authenticate returns the ID of the enabled user an access token was
// issued to.
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (string, error) {
	userID, err := auth.GetUserIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		return "", err
	}
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.AuthError(common.ReasonUnauthorized, "unknown user")
		}
		return "", err
	}
	if user.Disabled {
		return "", common.AuthError(common.ReasonAccountDisabled, "account is disabled")
	}
	return user.ID, nil
}

func (s *UserService) generateTokenPair(ctx context.Context, userID string, tx dbx.DBTX) (*TokenPair, error) {
	now := s.clock.Now()
	access, err := auth.GenerateToken(userID, s.jwtSecret, now, s.accessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("error generating access token: %w", err)
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, fmt.Errorf("error generating refresh token: %w", err)
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, userID, refresh, now.Add(s.refreshTokenValidityDuration)); err != nil {
		return nil, fmt.Errorf("error storing refresh token: %w", err)
	}
	return &TokenPair{UserID: userID, AccessToken: access, RefreshToken: refresh}, nil
}
