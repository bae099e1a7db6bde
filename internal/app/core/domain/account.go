package domain

// Account 帳戶
// Balance 以最小貨幣單位 (int64) 儲存，避免浮點誤差
// Limit 為允許的最大透支額度 (非負數)，不變量: Balance >= -Limit
type Account struct {
	ID      int64
	Balance int64
	Limit   int64
}

func NewAccount(id int64, balance int64, limit int64) *Account {
	return &Account{
		ID:      id,
		Balance: balance,
		Limit:   limit,
	}
}

// Credit 入帳
func (a *Account) Credit(amount int64) error {
	if amount < 0 {
		return ErrAmountMustBePositive
	}

	a.Balance = a.Balance + amount
	return nil
}

// Debit 扣帳，若扣帳後低於 -Limit 則拒絕
func (a *Account) Debit(amount int64) error {
	if amount < 0 {
		return ErrAmountMustBePositive
	}

	if a.Balance-amount < -a.Limit {
		return ErrInsufficientLimit
	}

	a.Balance = a.Balance - amount
	return nil
}

// Apply 依交易方向套用金額
func (a *Account) Apply(dir Direction, amount int64) error {
	switch dir {
	case DirectionCredit:
		return a.Credit(amount)
	case DirectionDebit:
		return a.Debit(amount)
	default:
		return ErrInvalidDirection
	}
}
