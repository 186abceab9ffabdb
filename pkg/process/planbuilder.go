package process

import (
	"context"

	"github.com/fctr-io/okta-query-engine/pkg/models"
	"github.com/fctr-io/okta-query-engine/pkg/planner"
)

// PlanBuilder is the Pre-Planner -> Narrow -> Planner -> Validate
// sequence spec.md §4.4 describes, packaged behind one call so the
// driver depends on an interface — stubbable in tests — instead of two
// concrete phase agents plus the narrowing function.
type PlanBuilder interface {
	Run(ctx context.Context, correlationID, query string) (*models.Plan, error)
}

type defaultPlanBuilder struct {
	prePlanner *planner.PrePlanner
	planner    *planner.Planner
	catalog    *models.Catalog
}

// NewPlanBuilder wraps the Pre-Planner and Planner agents plus the full
// catalog they narrow from.
func NewPlanBuilder(prePlanner *planner.PrePlanner, plnr *planner.Planner, catalog *models.Catalog) PlanBuilder {
	return &defaultPlanBuilder{prePlanner: prePlanner, planner: plnr, catalog: catalog}
}

func (b *defaultPlanBuilder) Run(ctx context.Context, correlationID, query string) (*models.Plan, error) {
	prePlanOut, err := b.prePlanner.Run(ctx, correlationID, query, b.catalog)
	if err != nil {
		return nil, err
	}
	narrowed := planner.Narrow(b.catalog, prePlanOut)

	plan, err := b.planner.Run(ctx, correlationID, query, narrowed)
	if err != nil {
		return nil, err
	}
	if err := plan.Validate(narrowed); err != nil {
		return nil, err
	}
	return plan, nil
}
