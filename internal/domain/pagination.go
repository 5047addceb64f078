package domain

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

type Pagination struct {
	Page  int
	Limit int
}

// Normalize validates the page and applies limit defaults.
func (p Pagination) Normalize() (Pagination, error) {
	if p.Page < 1 {
		return p, Invalid("pagination", "page must be greater than or equal to 1")
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p, nil
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}
