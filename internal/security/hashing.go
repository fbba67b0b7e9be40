package security

import "golang.org/x/crypto/bcrypt"

// Hasher wraps bcrypt for password storage. The zero cost is replaced with
// bcrypt's default; out-of-range costs are clamped into [MinCost, MaxCost].
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher at the given bcrypt cost.
func NewHasher(cost int) *Hasher {
	switch {
	case cost <= 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash returns the bcrypt hash of password in storable string form.
func (h *Hasher) Hash(password []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare reports whether password matches the stored hash. A non-nil error
// means mismatch or a malformed hash.
func (h *Hasher) Compare(hash string, password []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), password)
}
