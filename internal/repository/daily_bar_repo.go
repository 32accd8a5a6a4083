package repository

import (
	"context"
	"time"

	"sapas/internal/dto"
	"sapas/internal/model"
	"sapas/pkg/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DailyBarRepository interface {
	Get(ctx context.Context, param dto.GetDailyBarsParam) ([]model.DailyBar, error)
	Upsert(ctx context.Context, bars []model.DailyBar, opts ...utils.DBOption) error
	LatestDate(ctx context.Context, code, adjust string) (*time.Time, error)
	DistinctCodes(ctx context.Context) ([]string, error)
}

type dailyBarRepository struct {
	db *gorm.DB
}

func NewDailyBarRepository(db *gorm.DB) DailyBarRepository {
	return &dailyBarRepository{
		db: db,
	}
}

func (r *dailyBarRepository) Get(ctx context.Context, param dto.GetDailyBarsParam) ([]model.DailyBar, error) {
	var bars []model.DailyBar

	q := r.db.WithContext(ctx).
		Where("stock_code = ?", param.Code).
		Where("adjust = ?", param.Adjust)

	if !param.StartDate.IsZero() {
		q = q.Where("trade_date >= ?", param.StartDate)
	}
	if !param.EndDate.IsZero() {
		q = q.Where("trade_date <= ?", param.EndDate)
	}

	if err := q.Order("trade_date ASC").Find(&bars).Error; err != nil {
		return nil, err
	}
	return bars, nil
}

// Upsert inserts bars and silently skips rows already present; the sync job
// re-fetches overlapping ranges and duplicates are expected.
func (r *dailyBarRepository) Upsert(ctx context.Context, bars []model.DailyBar, opts ...utils.DBOption) error {
	if len(bars) == 0 {
		return nil
	}
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stock_code"}, {Name: "trade_date"}, {Name: "adjust"}},
			DoNothing: true,
		}).
		CreateInBatches(bars, 500).Error
}

func (r *dailyBarRepository) LatestDate(ctx context.Context, code, adjust string) (*time.Time, error) {
	var bar model.DailyBar
	err := r.db.WithContext(ctx).
		Where("stock_code = ? AND adjust = ?", code, adjust).
		Order("trade_date DESC").
		First(&bar).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &bar.TradeDate, nil
}

// DistinctCodes lists every instrument present in the local store. The sync
// job refreshes exactly this universe.
func (r *dailyBarRepository) DistinctCodes(ctx context.Context) ([]string, error) {
	var codes []string
	err := r.db.WithContext(ctx).
		Model(&model.DailyBar{}).
		Distinct("stock_code").
		Order("stock_code ASC").
		Pluck("stock_code", &codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}
