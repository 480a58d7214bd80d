package utils

import "golang.org/x/crypto/bcrypt"

func HashPassword(s string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
}

func ComparePassword(hashed string, normal string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(normal))
}

// Share tokens are stored hashed at rest; the plain token only ever
// appears in the share URL handed to the tenant.
func HashShareToken(token string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func CompareShareToken(hashed string, token string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(token))
}
