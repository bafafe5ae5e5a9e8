package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parity/internal/model"
	"github.com/sells-group/parity/internal/pipeline"
)

// assignableRoles are the roles an analyst may set. Transfer is
// machine-assigned by the matcher and never overridable.
var assignableRoles = map[model.Role]bool{
	model.RoleRevenueOperational:    true,
	model.RoleRevenueNonOperational: true,
	model.RoleSupplier:              true,
	model.RolePayroll:               true,
	model.RoleOther:                 true,
}

// RecordOverride appends a role override to the ledger. The weight is
// derived from the entity's currently effective role: a no-op is a revert
// (0 bp), crossing the revenue boundary is major (10000 bp), anything else
// is minor (5000 bp).
func (s *Service) RecordOverride(ctx context.Context, dealID, entityID string, newRole model.Role, createdBy string) (*model.Override, error) {
	if !assignableRoles[newRole] {
		return nil, eris.Errorf("override: role %q is not assignable", newRole)
	}

	overrides, err := s.store.ListOverrides(ctx, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "override: list ledger")
	}

	current, err := s.effectiveRole(ctx, dealID, entityID, overrides)
	if err != nil {
		return nil, err
	}

	weight := model.DeriveWeightBP(current, newRole)
	stored, err := s.store.InsertOverride(ctx, &model.Override{
		DealID:    dealID,
		EntityID:  entityID,
		Field:     "role",
		OldValue:  string(current),
		NewValue:  string(newRole),
		WeightBP:  weight,
		CreatedBy: createdBy,
	})
	if err != nil {
		return nil, eris.Wrap(err, "override: append")
	}

	zap.L().Info("override: recorded",
		zap.String("deal_id", dealID),
		zap.String("entity_id", entityID),
		zap.String("old_value", string(current)),
		zap.String("new_value", string(newRole)),
		zap.Int("weight_bp", weight),
	)
	return stored, nil
}

// effectiveRole resolves what the entity's role is right now: the latest
// override when one exists, otherwise the classifier's baseline from the
// stored records.
func (s *Service) effectiveRole(ctx context.Context, dealID, entityID string, overrides []model.Override) (model.Role, error) {
	if ov, ok := model.EffectiveOverrides(overrides)[entityID]; ok {
		return model.Role(ov.NewValue), nil
	}

	txns, err := s.store.ListTransactions(ctx, dealID)
	if err != nil {
		return "", eris.Wrap(err, "override: list transactions")
	}
	res, err := pipeline.Run(pipeline.Input{DealID: dealID, Transactions: txns})
	if err != nil {
		return "", eris.Wrap(err, "override: classify baseline")
	}
	for _, m := range res.Mappings {
		if m.EntityID == entityID {
			return m.Role, nil
		}
	}
	return "", eris.Errorf("override: unknown entity %s for deal %s", entityID, dealID)
}
