package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when a username/password pair does not match.
var ErrInvalidCredentials = errors.New("invalid username or password")

// MinPasswordScore is the lowest PasswordStrength score accepted at registration.
const MinPasswordScore = 2

// MaxPasswordBytes is the longest password bcrypt will hash.
const MaxPasswordBytes = 72

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares password against a bcrypt hash. An empty hash
// (single sign-on users) never matches.
func CheckPassword(hash, password string) error {
	if hash == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// PasswordStrength scores a password from 0 to 5 and labels it
// "weak" (below 2), "medium" (below 4) or "strong".
func PasswordStrength(password string) (int, string) {
	score := 0
	n := len([]rune(password))
	if n >= 8 {
		score++
	}
	if n >= 12 {
		score++
	}

	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}
	if lower && upper {
		score++
	}
	if digit {
		score++
	}
	if symbol {
		score++
	}

	switch {
	case score < 2:
		return score, "weak"
	case score < 4:
		return score, "medium"
	default:
		return score, "strong"
	}
}

// Registration is the submitted sign-up form.
type Registration struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// ValidationError names the offending form field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

// Validate trims the username and email and checks the form in the order
// the fields appear on the page.
func (f *Registration) Validate() error {
	f.Username = strings.TrimSpace(f.Username)
	f.Email = strings.TrimSpace(f.Email)

	if f.Username == "" {
		return &ValidationError{Field: "username", Message: "Username is required."}
	}
	if f.Password == "" {
		return &ValidationError{Field: "password", Message: "Password is required."}
	}
	if !emailPattern.MatchString(f.Email) {
		return &ValidationError{Field: "email", Message: "Please enter a valid email address."}
	}
	if f.Password != f.ConfirmPassword {
		return &ValidationError{Field: "confirm_password", Message: "Passwords do not match."}
	}
	if len(f.Password) > MaxPasswordBytes {
		return &ValidationError{Field: "password", Message: "Your password is too long. Use at most 72 bytes."}
	}
	if score, _ := PasswordStrength(f.Password); score < MinPasswordScore {
		return &ValidationError{
			Field:   "password",
			Message: "Your password is too weak. Use at least 8 characters with upper and lower case letters.",
		}
	}
	return nil
}
