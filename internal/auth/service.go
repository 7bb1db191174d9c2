package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"peerchat/internal/profile"
)

var ErrInvalidCredentials = errors.New("auth: invalid credentials")

type Service struct {
	profiles  *profile.Repository
	jwtSecret string
}

type Claims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(profiles *profile.Repository, secret string) *Service {
	return &Service{
		profiles:  profiles,
		jwtSecret: secret,
	}
}

func (s *Service) Register(ctx context.Context, username, email, password string) (*profile.Profile, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.profiles.Create(ctx, username, email, string(hashedPwd))
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ID          string `json:"id"`
	Username    string `json:"username"`
}

func (s *Service) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	p, err := s.profiles.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	ss, err := s.issueToken(p)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: ss,
		ID:          p.ID,
		Username:    p.Username,
	}, nil
}

func (s *Service) issueToken(p *profile.Profile) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ID:       p.ID,
		Username: p.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "peerchat",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	})
	return token.SignedString([]byte(s.jwtSecret))
}

func (s *Service) ValidateToken(tokenString string) (string, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})

	if err != nil || !token.Valid {
		return "", "", errors.New("auth: invalid token")
	}

	return claims.ID, claims.Username, nil
}
