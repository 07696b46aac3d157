/**
 * @description
 * Static product catalog mapping JVZoo product codes to internal entitlement
 * descriptors. The table is fixed at startup; there is no mutation API.
 * Unknown codes resolve to the free descriptor so a notification for a
 * product this deployment has never heard of still produces a sane license.
 *
 * The catalog is a leaf package: it must never import the store or the
 * aggregator, which keeps the dependency graph acyclic.
 */
package catalog

// Tier names, ordered by rank (see TierRank).
const (
	TierFree      = "free"
	TierFrontend  = "frontend"
	TierTemplates = "templates"
	TierPro       = "pro"
	TierAgency    = "agency"
	TierReseller  = "reseller"
	TierBundle    = "bundle"
	TierElite     = "elite"
)

// UnlimitedCredits marks a descriptor whose credit grant is uncapped.
const UnlimitedCredits = -1

// Descriptor describes the entitlement granted by one purchasable product.
type Descriptor struct {
	InternalID  string
	DisplayName string
	Tier        string
	// CreditGrant is the monthly credit allocation, or UnlimitedCredits.
	CreditGrant int
	Features    []string
	// AccountCreating products trigger the welcome-with-credentials email
	// path even for buyers who already have an account without a password.
	AccountCreating bool
	Recurring       bool
}

// freeDescriptor is the fallback for unknown product codes and the baseline
// entitlement for users with no active licenses.
var freeDescriptor = Descriptor{
	InternalID:  "adforge_free",
	DisplayName: "AdForge Free",
	Tier:        TierFree,
	CreditGrant: 50,
	Features:    []string{},
}

var products = map[string]Descriptor{
	"427079": {
		InternalID:      "adforge_fe",
		DisplayName:     "AdForge",
		Tier:            TierFrontend,
		CreditGrant:     500,
		Features:        []string{"image_ads", "ad_copy"},
		AccountCreating: true,
	},
	"427081": {
		InternalID:      "adforge_fe_monthly",
		DisplayName:     "AdForge Monthly",
		Tier:            TierFrontend,
		CreditGrant:     500,
		Features:        []string{"image_ads", "ad_copy"},
		AccountCreating: true,
		Recurring:       true,
	},
	"427083": {
		InternalID:  "adforge_pro",
		DisplayName: "AdForge Pro",
		Tier:        TierPro,
		CreditGrant: 2000,
		Features:    []string{"image_ads", "ad_copy", "templates", "image_resize", "brand_library"},
	},
	"427085": {
		InternalID:  "adforge_unlimited",
		DisplayName: "AdForge Unlimited",
		Tier:        TierElite,
		CreditGrant: UnlimitedCredits,
		Features:    []string{"image_ads", "ad_copy", "templates", "image_resize", "brand_library", "priority_render"},
	},
	"427087": {
		InternalID:  "adforge_templates",
		DisplayName: "AdForge Template Club",
		Tier:        TierTemplates,
		CreditGrant: 0,
		Features:    []string{"template_pack"},
		Recurring:   true,
	},
	"427089": {
		InternalID:  "adforge_agency",
		DisplayName: "AdForge Agency",
		Tier:        TierAgency,
		CreditGrant: 0,
		Features:    []string{"client_portal", "team_seats", "white_label"},
	},
	"427091": {
		InternalID:  "adforge_reseller",
		DisplayName: "AdForge Reseller",
		Tier:        TierReseller,
		CreditGrant: 0,
		Features:    []string{"reseller_panel"},
	},
	"427093": {
		InternalID:      "adforge_bundle",
		DisplayName:     "AdForge Bundle",
		Tier:            TierBundle,
		CreditGrant:     UnlimitedCredits,
		Features:        []string{"image_ads", "ad_copy", "templates", "image_resize", "brand_library", "priority_render", "client_portal", "team_seats", "template_pack"},
		AccountCreating: true,
	},
}

// tierRanks gives every tier the catalog can emit an explicit rank so the
// aggregation never has to compare two incomparable tiers. Unknown tiers rank
// below free and can never win.
var tierRanks = map[string]int{
	TierFree:      0,
	TierFrontend:  1,
	TierTemplates: 2,
	TierPro:       3,
	TierAgency:    4,
	TierReseller:  5,
	TierBundle:    6,
	TierElite:     7,
}

// maxActivationsByTier is the per-tier activation cap applied to new licenses.
var maxActivationsByTier = map[string]int{
	TierFrontend:  1,
	TierPro:       3,
	TierTemplates: 1,
	TierAgency:    10,
	TierReseller:  50,
	TierBundle:    10,
}

// Describe resolves an external product code to its descriptor. It never
// fails; unknown codes get the free descriptor.
func Describe(externalCode string) Descriptor {
	if d, ok := products[externalCode]; ok {
		return d
	}
	return freeDescriptor
}

// InternalID returns the internal product id for an external product code.
func InternalID(externalCode string) string {
	return Describe(externalCode).InternalID
}

// Free returns the baseline descriptor used when a user holds no active
// licenses.
func Free() Descriptor {
	return freeDescriptor
}

// TierRank returns the rank of a tier for aggregation ordering. Tiers not in
// the table return -1.
func TierRank(tier string) int {
	if rank, ok := tierRanks[tier]; ok {
		return rank
	}
	return -1
}

// MaxActivations returns the activation cap for a tier; unknown tiers get 1.
func MaxActivations(tier string) int {
	if n, ok := maxActivationsByTier[tier]; ok {
		return n
	}
	return 1
}
