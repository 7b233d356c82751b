// designs.go - read-only access to card designs. Designs are owned by the
// card-management side of the product; this service only renders them.

package store

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stampwise/passd/internal/loyalty"
)

var designColumns = []string{
	"id", "name", "loyalty_type", "description",
	"background_color", "foreground_color", "label_color",
	"icon_png", "logo_png",
	"max_stamps", "reward_threshold", "reward_description",
}

// GetDesign loads one card design by id.
func (s *Store) GetDesign(ctx context.Context, id uuid.UUID) (loyalty.Design, error) {
	query, args, err := psql.Select(designColumns...).
		From("card_designs").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return loyalty.Design{}, WrapInternalError(err, "failed to build design query")
	}

	row := s.pool.QueryRow(ctx, query, args...)
	design, err := scanDesign(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return loyalty.Design{}, NewNotFoundError(fmt.Sprintf("card design %s not found", id))
		}
		return loyalty.Design{}, WrapInternalError(err, "failed to load card design")
	}
	return design, nil
}

// scanDesign maps one card_designs row to the domain type, reconstructing the
// loyalty-type-specific rules from the nullable rule columns.
func scanDesign(row pgx.Row) (loyalty.Design, error) {
	var (
		design          loyalty.Design
		loyaltyType     string
		maxStamps       *int
		rewardThreshold *int
		rewardDesc      string
	)

	err := row.Scan(
		&design.ID, &design.Name, &loyaltyType, &design.Description,
		&design.BackgroundColor, &design.ForegroundColor, &design.LabelColor,
		&design.IconPNG, &design.LogoPNG,
		&maxStamps, &rewardThreshold, &rewardDesc,
	)
	if err != nil {
		return loyalty.Design{}, err
	}

	design.Type = loyalty.LoyaltyType(loyaltyType)

	switch design.Type {
	case loyalty.TypeStamps:
		rules := loyalty.StampRules{RewardDescription: rewardDesc}
		if maxStamps != nil {
			rules.MaxStamps = *maxStamps
		}
		design.Rules = rules

	case loyalty.TypePoints:
		rules := loyalty.PointsRules{RewardDescription: rewardDesc}
		if rewardThreshold != nil {
			rules.RewardThreshold = *rewardThreshold
		}
		design.Rules = rules

	case loyalty.TypeMembership:
		// membership designs store their tier label in reward_description
		design.Rules = loyalty.MembershipRules{TierLabel: rewardDesc}

	default:
		return loyalty.Design{}, fmt.Errorf("unknown loyalty type %q", loyaltyType)
	}

	return design, nil
}
