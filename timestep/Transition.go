package timestep

// Transition is a single (s, a, r, s', done) tuple
type Transition struct {
	State     []float64
	Action    int
	Reward    float64
	NextState []float64
	Done      bool
}
