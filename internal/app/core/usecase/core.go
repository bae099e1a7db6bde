package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
)

// CoreUseCase 是核心業務邏輯層
type CoreUseCase struct {
	ledger Ledger
}

func NewCoreUseCase(ledger Ledger) *CoreUseCase {
	return &CoreUseCase{
		ledger: ledger,
	}
}

// PostTransaction 處理交易
// 輸入已通過外層 (HTTP adapter) 的格式驗證，這裡仍做最後防線檢查，
// 並補上追蹤號與交易時間後交給 Ledger 執行
func (c *CoreUseCase) PostTransaction(ctx context.Context, accountID int64, dir domain.Direction, amount int64, description string) (*domain.Account, error) {
	if amount < 0 {
		return nil, domain.ErrAmountMustBePositive
	}
	if err := domain.ValidateDescription(description); err != nil {
		return nil, err
	}

	tran := &domain.Transaction{
		RefID:       uuid.New(),
		AccountID:   accountID,
		Amount:      amount,
		Direction:   dir,
		Description: description,
		PerformedAt: time.Now().UTC(),
	}

	return c.ledger.PostTransaction(ctx, tran)
}

// GetStatement 取得帳戶對帳單
func (c *CoreUseCase) GetStatement(ctx context.Context, accountID int64) (*domain.Statement, error) {
	return c.ledger.GetStatement(ctx, accountID)
}

// LoadAllAccounts 載入系統所有帳戶
func (c *CoreUseCase) LoadAllAccounts(ctx context.Context) (map[int64]*domain.Account, error) {
	return c.ledger.LoadAllAccounts(ctx)
}
