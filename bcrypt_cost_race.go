//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// PasswordHashCost is lowered for race-enabled builds so test suites can run with strict timeouts.
const PasswordHashCost = bcrypt.MinCost

func passwordHashCost() int {
	return PasswordHashCost
}
