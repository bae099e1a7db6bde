package domain

import "errors"

var (
	// ErrAmountMustBePositive 金額必須為非負整數
	ErrAmountMustBePositive = errors.New("amount must be positive")

	// ErrInsufficientLimit 超出信用額度 (balance 不可低於 -limit)
	ErrInsufficientLimit = errors.New("insufficient limit")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidDirection 交易方向不合法 (僅允許 c / d)
	ErrInvalidDirection = errors.New("invalid transaction direction")

	// ErrInvalidDescription 描述長度不合法 (1~10 字元)
	ErrInvalidDescription = errors.New("invalid transaction description")

	// ErrWALWriteFailed WAL 寫入失敗
	ErrWALWriteFailed = errors.New("wal write failed")
)
