package validation

import (
	"errors"
	"fmt"
	"regexp"
	"unicode"
)

const specialCharacters = `!@#$%^&*()-+?_=,<>/"`

var validUsername = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
var validEmail = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("must provide username")
	}
	if len(username) < 3 {
		return fmt.Errorf("username must be at least 3 characters long, got %d", len(username))
	}
	if len(username) > 50 {
		return fmt.Errorf("username must be at most 50 characters long, got %d", len(username))
	}
	if !validUsername.MatchString(username) {
		return errors.New("username can only contain letters, numbers, underscores, and hyphens")
	}
	return nil
}

func ValidatePassword(password string) error {
	if password == "" {
		return errors.New("must provide password")
	}
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters long, got %d", len(password))
	}
	if len(password) > 128 {
		return fmt.Errorf("password must be at most 128 characters long, got %d", len(password))
	}

	hasSpecial := false
	hasAlnum := false
	for _, c := range password {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			hasAlnum = true
		}
	}
	for _, c := range specialCharacters {
		for _, p := range password {
			if p == c {
				hasSpecial = true
			}
		}
	}
	if !hasSpecial {
		return errors.New("password must contain a special character")
	}
	if !hasAlnum {
		return errors.New("password must contain letters and numbers")
	}
	return nil
}

// Email is optional at registration.
func ValidateEmail(email string) error {
	if email == "" {
		return nil
	}
	if len(email) > 255 {
		return fmt.Errorf("email must be at most 255 characters long, got %d", len(email))
	}
	if !validEmail.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}

func ValidateRegisterRequest(username, email, password, confirmation string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	if confirmation == "" {
		return errors.New("must confirm password")
	}
	if confirmation != password {
		return errors.New("password and confirmation must match")
	}
	return nil
}

func ValidateLoginRequest(username, password string) error {
	if username == "" {
		return errors.New("must provide username")
	}
	if password == "" {
		return errors.New("must provide password")
	}
	return nil
}
