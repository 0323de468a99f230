//go:build !race

package auth

// PasswordHashCost is the bcrypt work factor used outside race builds.
const PasswordHashCost = 12

func passwordHashCost() int {
	return PasswordHashCost
}
