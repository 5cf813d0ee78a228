// Package auth はOAuth認証フロー、仮登録、セッション発行を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/wakr/internal/metrics"
	"github.com/hitoshi/wakr/internal/model"
	"github.com/hitoshi/wakr/internal/repository"
	"github.com/hitoshi/wakr/internal/security"
)

// ErrMissingCode は認可コードが指定されていないことを示す。
var ErrMissingCode = errors.New("authorization code is required")

// ErrUnverifiedEmail は未確認のメールアドレスで既存ユーザーへの紐付けを試みたことを示す。
var ErrUnverifiedEmail = errors.New("email address is not verified by the provider")

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge time.Duration
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	sanitizer   security.TextSanitizer
	collector   metrics.MetricsCollector
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		sanitizer:   sanitizer,
		collector:   collector,
		config:      config,
		now:         time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// CallbackResult はOAuthコールバック処理の結果。
type CallbackResult struct {
	Session *model.Session
	UserID  string
	Created bool // 新規ユーザーを作成した
	Merged  bool // 仮登録データを統合した
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
//  1. 認可コードをトークンとユーザー情報に交換する
//  2. identity、同一メールの仮登録ユーザー、新規作成の順でユーザーを特定する
//  3. 仮登録データを1回だけ統合する
//  4. セッションを発行する
func (s *Service) HandleCallback(ctx context.Context, code string) (*CallbackResult, error) {
	if code == "" {
		return nil, ErrMissingCode
	}

	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	userID, created, err := s.findOrCreateUser(ctx, info)
	if err != nil {
		return nil, err
	}

	// 条件付きUPDATE1文で判定と書き込みを行う。重複したコールバックでは対象行なしになる。
	merged, err := s.userRepo.MergeTempRegistration(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to merge temp registration: %w", err)
	}
	if merged {
		s.collector.RecordRegistrationMerged()
		slog.Info("temp registration merged", slog.String("user_id", userID))
	}

	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &CallbackResult{
		Session: session,
		UserID:  userID,
		Created: created,
		Merged:  merged,
	}, nil
}

// findOrCreateUser はOAuthユーザー情報に対応するユーザーIDを返す。
func (s *Service) findOrCreateUser(ctx context.Context, info *OAuthUserInfo) (string, bool, error) {
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return "", false, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity != nil {
		slog.Info("existing user logged in",
			slog.String("user_id", identity.UserID),
			slog.String("provider", info.Provider),
		)
		return identity.UserID, false, nil
	}

	now := s.now()
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	existing, err := s.userRepo.FindByEmail(ctx, info.Email)
	if err != nil {
		return "", false, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		if !info.EmailVerified {
			return "", false, ErrUnverifiedEmail
		}
		newIdentity.UserID = existing.ID
		if err := s.identRepo.Create(ctx, newIdentity); err != nil {
			return "", false, fmt.Errorf("failed to link identity: %w", err)
		}
		slog.Info("identity linked to existing user",
			slog.String("user_id", existing.ID),
			slog.String("provider", info.Provider),
		)
		return existing.ID, false, nil
	}

	newUser := &model.User{
		ID:        uuid.New().String(),
		Email:     strings.ToLower(info.Email),
		Name:      s.sanitizer.SanitizeText(info.Name),
		Metadata:  model.Metadata{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	newIdentity.UserID = newUser.ID

	if err := s.userRepo.CreateWithIdentity(ctx, newUser, newIdentity); err != nil {
		return "", false, fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", newUser.ID),
		slog.String("provider", info.Provider),
	)
	return newUser.ID, true, nil
}

// RegisterInput は仮登録の入力。
type RegisterInput struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	Phone     string `json:"phone"`
	FullName  string `json:"full_name"`
}

// Register はメール確認前のプロフィールを仮登録データとして保存し、ユーザーIDを返す。
// オンボーディング完了済みのメールアドレスにはALREADY_REGISTEREDを返す。
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = s.sanitizer.SanitizeText(in.FirstName)
	in.Phone = s.sanitizer.SanitizeText(in.Phone)
	in.FullName = s.sanitizer.SanitizeText(in.FullName)

	v := model.Violations{}
	v.Email("email", in.Email)
	v.Required("first_name", in.FirstName)
	v.MaxLength("first_name", in.FirstName, model.MaxTextLength)
	v.Phone("phone", in.Phone)
	v.MaxLength("full_name", in.FullName, model.MaxTextLength)
	if !v.Empty() {
		return "", model.NewValidationError(v)
	}

	temp := map[string]any{
		model.MetaFirstName: in.FirstName,
		model.MetaPhone:     in.Phone,
	}
	if in.FullName != "" {
		temp[model.MetaFullName] = in.FullName
	}

	userID, err := s.userRepo.SaveTempRegistration(ctx, uuid.New().String(), in.Email, temp, s.now())
	if err != nil {
		return "", fmt.Errorf("failed to save registration: %w", err)
	}
	if userID == "" {
		return "", model.NewAlreadyRegisteredError()
	}

	slog.Info("temp registration saved", slog.String("user_id", userID))
	return userID, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// GetCurrentUser はユーザーIDから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(s.config.SessionMaxAge),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
