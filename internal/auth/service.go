package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"wainbox/pkg/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserDisabled       = errors.New("user account is disabled")
	ErrInvalidToken       = errors.New("invalid token")
)

const issuer = "wainbox"

// Service handles authentication logic
type Service struct {
	userRepo       UserRepository
	secret         []byte
	accessDuration time.Duration
}

// UserRepository interface for user data access
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id uint) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	AssignedNumberIDs(ctx context.Context, userID uint) ([]uint, error)
}

// NewService creates a new auth service
func NewService(userRepo UserRepository, secret string, accessDuration time.Duration) *Service {
	if accessDuration <= 0 {
		accessDuration = 168 * time.Hour
	}
	return &Service{
		userRepo:       userRepo,
		secret:         []byte(secret),
		accessDuration: accessDuration,
	}
}

// LoginRequest represents login request data
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents login response data
type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	User        models.User `json:"user"`
	ExpiresIn   int64       `json:"expires_in"`
}

// TokenClaims represents JWT token claims
type TokenClaims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Login authenticates a user and returns an access token
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !verifyPassword(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrUserDisabled
	}

	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: accessToken,
		User:        *user,
		ExpiresIn:   int64(s.accessDuration.Seconds()),
	}, nil
}

// ValidateToken validates and parses a JWT token
func (s *Service) ValidateToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// ResolvePrincipal turns a bearer token into the principal acting on the inbox.
// The user is re-read so a disabled account or a changed assignment takes
// effect without waiting for the token to expire.
func (s *Service) ResolvePrincipal(ctx context.Context, tokenString string) (*Principal, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}

	return s.PrincipalFor(ctx, user)
}

// PrincipalFor builds the principal of user from its role and assignments
func (s *Service) PrincipalFor(ctx context.Context, user *models.User) (*Principal, error) {
	principal := &Principal{ID: user.ID, Username: user.Username, Role: user.Role}
	if user.IsAdmin() {
		return principal, nil
	}

	numberIDs, err := s.userRepo.AssignedNumberIDs(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	principal.NumberIDs = numberIDs
	return principal, nil
}

// SetPassword replaces the password of the user with the given username
func (s *Service) SetPassword(ctx context.Context, username, password string) error {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("user %q not found: %w", username, err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return s.userRepo.Update(ctx, user)
}

// generateAccessToken generates an access token
func (s *Service) generateAccessToken(user *models.User) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// HashPassword hashes a password with bcrypt
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// verifyPassword verifies a password against its hash
func verifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
