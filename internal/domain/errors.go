package domain

import "errors"

// 这些错误会跨越流水线边界，调用方用 errors.Is 区分并给出不同提示。
var (
	// ErrAcquisitionExhausted 表示所有 provider/validator 组合都失败（终态，无部分结果）。
	ErrAcquisitionExhausted = errors.New("acquisition exhausted")
	// ErrQuotaExceeded 表示免费用户当日额度已用完。
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrConsumerBanned 表示消费者已被封禁，不允许任何获取。
	ErrConsumerBanned = errors.New("consumer banned")
	// ErrScheduleNotFound 表示 (destination, interval) 下没有 active 的计划。
	ErrScheduleNotFound = errors.New("schedule not found")
	// ErrRecordInvalid 表示 provider 映射结果违反 ContentRecord 约束。
	ErrRecordInvalid = errors.New("content record invalid")
)
