package domain

// Entitlement is the derived aggregate of a user's tier, credit allowance and
// feature set across all of their active licenses. It is computed fresh on
// each query and never persisted, so it is always consistent with current
// license state.
type Entitlement struct {
	Tier        string   `json:"tier"`
	CreditLimit int      `json:"credit_limit"`
	IsUnlimited bool     `json:"is_unlimited"`
	Features    []string `json:"features"`
}
