package domain

// PolicyConfig defines a score-override policy evaluated after the fixed
// business rules. The expression is CEL over the feature vector and the
// composite score; when it evaluates truthy, Adjustment is added to the
// score (bounded, result clamped to [0,100]).
type PolicyConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression to evaluate
	Expression string `json:"expression"`

	// Adjustment added to the composite score when the policy matches.
	// Negative values discount the score.
	Adjustment float64 `json:"adjustment"`

	// Reason is appended to the output explanations when matched.
	Reason string `json:"reason"`

	// Whether the policy is active
	Enabled bool `json:"enabled"`
}

// PolicyResult is the outcome of evaluating one policy.
type PolicyResult struct {
	PolicyID   string  `json:"policyId"`
	Matched    bool    `json:"matched"`
	Adjustment float64 `json:"adjustment"`
	Reason     string  `json:"reason,omitempty"`
	Err        string  `json:"error,omitempty"`
}
