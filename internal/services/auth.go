package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yungbote/roadmap-backend/internal/data/aggregates"
	"github.com/yungbote/roadmap-backend/internal/data/repos"
	"github.com/yungbote/roadmap-backend/internal/domain"
	domainagg "github.com/yungbote/roadmap-backend/internal/domain/aggregates"
	"github.com/yungbote/roadmap-backend/internal/domain/user"
	"github.com/yungbote/roadmap-backend/internal/platform/apierr"
	"github.com/yungbote/roadmap-backend/internal/platform/ctxutil"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

var (
	errInvalidCredentials = errors.New("Invalid email or password")
	errInvalidToken       = errors.New("Invalid or expired token")
	errTokenUserMissing   = errors.New("Invalid token: User not found")
	errUserInactive       = errors.New("User account is deactivated")
	errUserNotFound       = errors.New("User not found")
	errEmailTaken         = errors.New("Email already exists")
	errUsernameTaken      = errors.New("Username already exists")
)

type JWTClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*domain.User, string, error)
	Login(ctx context.Context, email, password string) (*domain.User, string, error)
	Profile(ctx context.Context, uid uuid.UUID) (*domain.User, error)
	// Authenticate verifies token and returns ctx carrying the caller's request data.
	Authenticate(ctx context.Context, tokenString string) (context.Context, error)
	Logout(ctx context.Context) error
	AccessTTL() time.Duration
}

type authService struct {
	log       *logger.Logger
	users     repos.UserRepo
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

func NewAuthService(log *logger.Logger, users repos.UserRepo, jwtSecretKey string, accessTTL time.Duration) AuthService {
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	return &authService{
		log:       log.With("service", "AuthService"),
		users:     users,
		secret:    []byte(jwtSecretKey),
		accessTTL: accessTTL,
		now:       time.Now,
	}
}

func (as *authService) Register(ctx context.Context, username, email, password string) (*domain.User, string, error) {
	const op = "auth.register"
	username = strings.TrimSpace(username)
	email = user.NormalizeEmail(email)
	if err := user.ValidateRegistration(username, email, password); err != nil {
		return nil, "", apierr.BadRequest(string(domainagg.CodeValidation), err)
	}

	dbc := dbctx.Background(ctx)
	taken, err := as.users.ExistsByEmailOrUsername(dbc, email, username)
	if err != nil {
		return nil, "", as.storeFailure(op, err)
	}
	if taken {
		return nil, "", as.duplicate(dbc, op, email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		as.log.Error("password hash failed", "error", err)
		return nil, "", apierr.New(http.StatusInternalServerError, string(domainagg.CodeInternal), fmt.Errorf("internal server error"))
	}

	u := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         user.RoleUser,
		Active:       true,
	}
	created, err := as.users.Create(dbc, u)
	if err != nil {
		// A concurrent registration can still win the unique index.
		if domainagg.IsCode(aggregates.MapError(op, err), domainagg.CodeConflict) {
			return nil, "", as.duplicate(dbc, op, email)
		}
		return nil, "", as.storeFailure(op, err)
	}

	tok, err := as.generateAccessToken(created)
	if err != nil {
		return nil, "", err
	}
	as.log.Info("user registered", "user_id", created.ID)
	return created, tok, nil
}

func (as *authService) duplicate(dbc dbctx.Context, op, email string) error {
	existing, err := as.users.GetByEmail(dbc, email)
	if err != nil {
		return as.storeFailure(op, err)
	}
	if existing != nil {
		return apierr.Conflict(string(domainagg.CodeConflict), errEmailTaken)
	}
	return apierr.Conflict(string(domainagg.CodeConflict), errUsernameTaken)
}

func (as *authService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	const op = "auth.login"
	email = user.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, "", apierr.BadRequest(string(domainagg.CodeValidation), errors.New("email and password are required"))
	}
	u, err := as.users.GetByEmail(dbctx.Background(ctx), email)
	if err != nil {
		return nil, "", as.storeFailure(op, err)
	}
	if u == nil {
		return nil, "", apierr.Unauthorized("unauthorized", errInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		as.log.Debug("password mismatch", "user_id", u.ID)
		return nil, "", apierr.Unauthorized("unauthorized", errInvalidCredentials)
	}
	if !u.Active {
		return nil, "", apierr.Forbidden("forbidden", errUserInactive)
	}
	tok, err := as.generateAccessToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, tok, nil
}

func (as *authService) Profile(ctx context.Context, uid uuid.UUID) (*domain.User, error) {
	if uid == uuid.Nil {
		return nil, apierr.Unauthorized("unauthorized", errAuthRequired)
	}
	u, err := as.users.GetByID(dbctx.Background(ctx), uid)
	if err != nil {
		return nil, as.storeFailure("auth.profile", err)
	}
	if u == nil {
		return nil, apierr.NotFound(string(domainagg.CodeNotFound), errUserNotFound)
	}
	return u, nil
}

func (as *authService) generateAccessToken(u *domain.User) (string, error) {
	now := as.now()
	claims := JWTClaims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(as.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(as.secret)
	if err != nil {
		as.log.Error("sign access token failed", "error", err)
		return "", apierr.New(http.StatusInternalServerError, string(domainagg.CodeInternal), fmt.Errorf("internal server error"))
	}
	return signed, nil
}

func (as *authService) Authenticate(ctx context.Context, tokenString string) (context.Context, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return ctx, apierr.Unauthorized("unauthorized", errAuthRequired)
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return as.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(as.now),
	)
	if err != nil {
		as.log.Debug("token rejected", "error", err)
		return ctx, apierr.Unauthorized("unauthorized", errInvalidToken)
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return ctx, apierr.Unauthorized("unauthorized", errInvalidToken)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, apierr.Unauthorized("unauthorized", errInvalidToken)
	}

	u, err := as.users.GetByID(dbctx.Background(ctx), userID)
	if err != nil {
		return ctx, as.storeFailure("auth.authenticate", err)
	}
	if u == nil {
		return ctx, apierr.Unauthorized("unauthorized", errTokenUserMissing)
	}
	if !u.Active {
		return ctx, apierr.Forbidden("forbidden", errUserInactive)
	}

	rd := &ctxutil.RequestData{
		TokenString: tokenString,
		UserID:      u.ID,
		Role:        u.Role,
	}
	return ctxutil.WithRequestData(ctx, rd), nil
}

// Logout has nothing to revoke; tokens expire on their own.
func (as *authService) Logout(ctx context.Context) error {
	if ctxutil.UserID(ctx) == uuid.Nil {
		return apierr.Unauthorized("unauthorized", errAuthRequired)
	}
	as.log.Debug("logout", "user_id", ctxutil.UserID(ctx))
	return nil
}

func (as *authService) AccessTTL() time.Duration {
	return as.accessTTL
}

func (as *authService) storeFailure(op string, err error) error {
	mapped := aggregates.MapError(op, err)
	as.log.Error("user store failed", "op", op, "error", err)
	return toAPIError(mapped)
}
