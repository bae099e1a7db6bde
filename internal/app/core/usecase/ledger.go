package usecase

import (
	"context"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
)

// Ledger 是帳務系統的介面
type Ledger interface {
	// PostTransaction 套用一筆交易，回傳套用後的帳戶快照
	// 不再分 Credit/Debit，直接看 tran.Direction 決定
	PostTransaction(ctx context.Context, tran *domain.Transaction) (*domain.Account, error)
	// GetStatement 取得帳戶對帳單 (餘額 + 最近 10 筆交易)
	GetStatement(ctx context.Context, accountID int64) (*domain.Statement, error)
	// LoadAllAccounts 載入所有帳戶
	LoadAllAccounts(ctx context.Context) (map[int64]*domain.Account, error)
}
