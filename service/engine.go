package service

import (
	"context"

	"grainflow/models"

	"github.com/shopspring/decimal"
)

// engine wires the ledger operations behind the single Engine surface
type engine struct {
	wallets        WalletService
	harvest        HarvestService
	spend          SpendService
	compost        CompostService
	redistribution RedistributionService
}

// NewEngine creates the engine facade
func NewEngine(wallets WalletService, harvest HarvestService, spend SpendService, compost CompostService, redistribution RedistributionService) Engine {
	return &engine{
		wallets:        wallets,
		harvest:        harvest,
		spend:          spend,
		compost:        compost,
		redistribution: redistribution,
	}
}

func (e *engine) GetBalance(ctx context.Context, userID int64) (*models.BalanceView, error) {
	return e.wallets.GetBalance(ctx, userID)
}

func (e *engine) Harvest(ctx context.Context, req HarvestRequest) (*models.Transaction, error) {
	return e.harvest.Harvest(ctx, req)
}

func (e *engine) Spend(ctx context.Context, userID int64, amount int64, reason models.Reason) (*models.Transaction, error) {
	return e.spend.Spend(ctx, userID, amount, reason)
}

func (e *engine) RunCompostCycle(ctx context.Context, dryRun bool) (*models.CompostResult, error) {
	return e.compost.Run(ctx, dryRun)
}

func (e *engine) RunRedistributionCycle(ctx context.Context, rate *decimal.Decimal) (*models.RedistributionResult, error) {
	return e.redistribution.Run(ctx, rate)
}
