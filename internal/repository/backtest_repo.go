package repository

import (
	"context"
	"fmt"
	"time"

	"sapas/internal/dto"
	"sapas/internal/model"
	"sapas/pkg/utils"

	"gorm.io/gorm"
)

type BacktestRepository interface {
	Create(ctx context.Context, run *model.BacktestRun) error
	GetByID(ctx context.Context, id uint, withTrades bool) (*model.BacktestRun, error)
	List(ctx context.Context, param model.GetBacktestRunParam) ([]model.BacktestRun, error)
	UpdateStatus(ctx context.Context, id uint, from, to string) (bool, error)
	SaveResult(ctx context.Context, run *model.BacktestRun, trades []model.BacktestTrade) error
	SetAISummary(ctx context.Context, id uint, summary string) error
}

type backtestRepository struct {
	db *gorm.DB
}

func NewBacktestRepository(db *gorm.DB) BacktestRepository {
	return &backtestRepository{
		db: db,
	}
}

func (r *backtestRepository) Create(ctx context.Context, run *model.BacktestRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *backtestRepository) GetByID(ctx context.Context, id uint, withTrades bool) (*model.BacktestRun, error) {
	var run model.BacktestRun

	q := r.db.WithContext(ctx)
	if withTrades {
		q = q.Preload("Trades", func(db *gorm.DB) *gorm.DB {
			return db.Order("trade_date ASC, id ASC")
		})
	}

	if err := q.First(&run, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *backtestRepository) List(ctx context.Context, param model.GetBacktestRunParam) ([]model.BacktestRun, error) {
	var runs []model.BacktestRun

	opts := []utils.DBOption{utils.WithOrder("created_at DESC")}
	if len(param.Statuses) > 0 {
		opts = append(opts, utils.WithWhere("status IN (?)", param.Statuses))
	}
	if param.StrategyName != nil {
		opts = append(opts, utils.WithWhere("strategy_name = ?", *param.StrategyName))
	}
	if param.Limit != nil {
		opts = append(opts, utils.WithLimit(*param.Limit))
	}

	if err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// UpdateStatus performs a guarded transition and reports whether the row
// moved. A false return with nil error means the run was not in the expected
// state, which is how concurrent cancel and finish race safely.
func (r *backtestRepository) UpdateStatus(ctx context.Context, id uint, from, to string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.BacktestRun{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SaveResult writes the terminal state of a run and its trades in one
// transaction so readers never observe a completed run without fills.
func (r *backtestRepository) SaveResult(ctx context.Context, run *model.BacktestRun, trades []model.BacktestTrade) error {
	now := time.Now()
	run.CompletedAt = &now

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":         run.Status,
			"error_message":  run.ErrorMessage,
			"result_summary": run.ResultSummary,
			"equity_curve":   run.EquityCurve,
			"completed_at":   run.CompletedAt,
		}
		res := tx.Model(&model.BacktestRun{}).
			Where("id = ? AND status = ?", run.ID, string(dto.RunStatusRunning)).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("run %d is no longer running, result discarded", run.ID)
		}

		for i := range trades {
			trades[i].BacktestRunID = run.ID
		}
		return r.createTrades(ctx, trades, utils.WithTx(tx))
	})
}

func (r *backtestRepository) createTrades(ctx context.Context, trades []model.BacktestTrade, opts ...utils.DBOption) error {
	if len(trades) == 0 {
		return nil
	}
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...)
	return db.CreateInBatches(trades, 500).Error
}

func (r *backtestRepository) SetAISummary(ctx context.Context, id uint, summary string) error {
	return r.db.WithContext(ctx).
		Model(&model.BacktestRun{}).
		Where("id = ?", id).
		Update("ai_summary", summary).Error
}
