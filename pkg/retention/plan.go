package retention

type Plan struct {
	MaxAgeDays int
	Metrics    bool
}
