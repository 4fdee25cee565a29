package agents

// Constant always quotes its reservation price, ignoring observations.
type Constant struct {
	base
}

func NewConstant(role Role, reservation float64) (*Constant, error) {
	b, err := newBase("Cons", role, reservation)
	if err != nil {
		return nil, err
	}
	return &Constant{base: b}, nil
}

func (c *Constant) Quote(obs []float64) (float64, error) {
	return c.reservation, nil
}
