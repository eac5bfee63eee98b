package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/config"
	"github.com/smada/genius-backend/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidTeacherCode = errors.New("invalid teacher code")
)

// TokenType distinguishes student vs teacher tokens.
type TokenType string

const (
	TokenTypeStudent TokenType = "student"
	TokenTypeTeacher TokenType = "teacher"
)

// TeacherSubject is the subject of every teacher token. There is a single
// shared teacher identity.
const TeacherSubject = "teacher"

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name,omitempty"`
	NIS       string    `json:"nis,omitempty"`   // Student only
	Class     string    `json:"class,omitempty"` // Student only
}

// Student rebuilds the student identity carried by a student token.
func (c *Claims) Student() model.Student {
	return model.Student{
		ID:    c.UserID,
		Name:  c.Name,
		NIS:   c.NIS,
		Class: c.Class,
	}
}

// AuthService handles teacher and student login and JWT issuance.
type AuthService struct {
	cfg      *config.Config
	students *StudentService
	log      zerolog.Logger
	now      func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, students *StudentService, log zerolog.Logger) *AuthService {
	return &AuthService{
		cfg:      cfg,
		students: students,
		log:      log.With().Str("component", "auth_service").Logger(),
		now:      time.Now,
	}
}

// HashToken hashes a teacher token with the configured bcrypt cost.
func HashToken(token string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	return string(hash), err
}

// CheckTeacherToken compares a login string against the configured teacher
// token. A configured bcrypt hash takes precedence over the plain token.
func (s *AuthService) CheckTeacherToken(token string) error {
	if s.cfg.TeacherTokenHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.TeacherTokenHash), []byte(token)); err != nil {
			return ErrInvalidTeacherCode
		}
		return nil
	}
	if s.cfg.TeacherToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.TeacherToken)) != 1 {
		return ErrInvalidTeacherCode
	}
	return nil
}

// LoginTeacher checks the teacher code and issues a teacher token.
func (s *AuthService) LoginTeacher(token string) (string, error) {
	if err := s.CheckTeacherToken(strings.TrimSpace(token)); err != nil {
		s.log.Warn().Msg("Rejected teacher login")
		return "", err
	}
	return s.sign(Claims{
		TokenType: TokenTypeTeacher,
		UserID:    TeacherSubject,
		Name:      "Guru",
	})
}

// LoginStudent looks the student up by NIS and issues a student token.
func (s *AuthService) LoginStudent(nis string) (string, *model.Student, error) {
	student, err := s.students.GetByNIS(strings.TrimSpace(nis))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	signed, err := s.sign(Claims{
		TokenType: TokenTypeStudent,
		UserID:    student.ID,
		Name:      student.Name,
		NIS:       student.NIS,
		Class:     student.Class,
	})
	if err != nil {
		return "", nil, err
	}
	s.log.Info().Str("student_id", student.ID).Msg("Student logged in")
	return signed, student, nil
}

func (s *AuthService) sign(claims Claims) (string, error) {
	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}
