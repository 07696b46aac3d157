/**
 * @description
 * Entitlement aggregation. A user's effective entitlement is derived from all
 * of their active, unexpired licenses: credit grants are additive, features
 * are unioned, and the highest-ranked tier wins. Users with no active
 * licenses fall back to the free baseline.
 *
 * @dependencies
 * - internal/catalog: Product descriptors, tier ranking.
 * - internal/domain: Entitlement and license models.
 */

package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/adforge/licensing-service/internal/catalog"
	"github.com/adforge/licensing-service/internal/domain"
)

// EntitlementsFor computes the effective entitlement for a user from their
// active licenses. Only licenses the store already considers active and
// unexpired participate; terminal and lapsed licenses contribute nothing.
func (s *Service) EntitlementsFor(ctx context.Context, userID uuid.UUID) (*domain.Entitlement, error) {
	licenses, err := s.repo.FindActiveLicensesByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active licenses: %w", err)
	}

	if len(licenses) == 0 {
		free := catalog.Free()
		return &domain.Entitlement{
			Tier:        free.Tier,
			CreditLimit: free.CreditGrant,
			Features:    []string{},
		}, nil
	}

	var (
		totalCredits int
		unlimited    bool
		features     = make(map[string]struct{})
		bestTier     = catalog.TierFree
		bestRank     = catalog.TierRank(catalog.TierFree)
	)

	for _, lic := range licenses {
		if lic.CreditsAllocated == domain.UnlimitedCredits {
			unlimited = true
		} else {
			totalCredits += lic.CreditsAllocated
		}

		desc := catalog.Describe(lic.ProductCode)
		for _, f := range desc.Features {
			features[f] = struct{}{}
		}
		// Strict comparison: the first license seen at the winning rank keeps
		// the tier, so equal-ranked duplicates are stable.
		if rank := catalog.TierRank(desc.Tier); rank > bestRank {
			bestRank = rank
			bestTier = desc.Tier
		}
	}

	if unlimited {
		totalCredits = domain.UnlimitedCredits
	}

	featureList := make([]string, 0, len(features))
	for f := range features {
		featureList = append(featureList, f)
	}
	sort.Strings(featureList)

	return &domain.Entitlement{
		Tier:        bestTier,
		CreditLimit: totalCredits,
		IsUnlimited: unlimited,
		Features:    featureList,
	}, nil
}
