package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordMismatch is returned when a plaintext password does not match its hash.
var ErrPasswordMismatch = errors.New("password does not match")

// ErrEmptyPassword rejects hashing an empty secret.
var ErrEmptyPassword = errors.New("password must not be empty")

// HashPassword bcrypt-hashes password. A zero cost selects bcrypt.DefaultCost;
// anything else is clamped to the range bcrypt accepts.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), normalizeCost(cost))
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword checks plain against hashed. A wrong password yields
// ErrPasswordMismatch; a malformed hash yields the bcrypt error.
func ComparePassword(hashed, plain string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}

// HashCost reports the cost a stored hash was generated with.
func HashCost(hashed string) (int, error) {
	return bcrypt.Cost([]byte(hashed))
}

func normalizeCost(cost int) int {
	switch {
	case cost == 0:
		return bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		return bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		return bcrypt.MaxCost
	}
	return cost
}
