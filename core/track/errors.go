package track

import "errors"

var (
	// ErrAuthenticationRequired 需要登录
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrNotFound 曲目不存在或不属于调用者
	ErrNotFound = errors.New("track not found")
	// ErrInvalidInput 标题或提示词为空
	ErrInvalidInput = errors.New("invalid track input")
)
