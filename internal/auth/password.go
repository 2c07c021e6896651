package auth

import "golang.org/x/crypto/bcrypt"

// passwordCost is the bcrypt work factor for account passwords. Raising it
// later only affects new hashes; stored hashes keep verifying at the cost
// they were written with.
const passwordCost = 12

// HashPassword hashes an account password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks password against a stored hash. A mismatch is a
// non-nil error; callers map it to the generic invalid-credentials reply.
func VerifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
