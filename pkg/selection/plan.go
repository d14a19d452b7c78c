package selection

type Plan struct {
	Rules      []IncludeRule
	Exclusions ExclusionSet
	Metrics    bool
}
