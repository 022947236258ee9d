package service

import (
	"unicode"

	"backend/pkg/apperror"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plaintext password with bcrypt at the given cost.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether the plaintext matches the stored hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePasswordStrength checks the fixed password policy and returns one
// field error per unmet rule. An empty slice means the password passes.
func ValidatePasswordStrength(password string) []apperror.FieldError {
	var errs []apperror.FieldError
	add := func(msg string) {
		errs = append(errs, apperror.FieldError{Field: "password", Message: msg})
	}

	if len(password) < 8 {
		add("La contraseña debe tener al menos 8 caracteres")
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper {
		add("La contraseña debe contener al menos una letra mayúscula")
	}
	if !hasLower {
		add("La contraseña debe contener al menos una letra minúscula")
	}
	if !hasDigit {
		add("La contraseña debe contener al menos un número")
	}
	if !hasSymbol {
		add("La contraseña debe contener al menos un carácter especial")
	}
	return errs
}
