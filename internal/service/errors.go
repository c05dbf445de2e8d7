package service

import "errors"

var (
	// ErrOracleUnavailable oracle 无法连接或超时。
	ErrOracleUnavailable = errors.New("oracle unavailable")
	// ErrOracleMalformedOutput oracle 返回内容无法解析或取值非法。
	ErrOracleMalformedOutput = errors.New("oracle returned malformed output")
	// ErrCatalogUnavailable 车源目录不可用。
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrMemoryWriteFailed 长期记忆重试后仍写入失败。
	ErrMemoryWriteFailed = errors.New("memory write failed")
	// ErrInvalidCriteria 检索条件非法（负数价格等）。
	ErrInvalidCriteria = errors.New("invalid search criteria")
	// ErrMissingUser 请求缺少用户标识。
	ErrMissingUser = errors.New("user id is required")
	// ErrEmptyUtterance 用户发言为空。
	ErrEmptyUtterance = errors.New("utterance is empty")
)
