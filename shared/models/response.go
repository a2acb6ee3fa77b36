package models

import "time"

// ErrorResponse - стандартная структура для ответа об ошибке в формате JSON.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Timestamp string `json:"timestamp"`
}

// NewErrorResponse собирает тело ответа для AppError.
func NewErrorResponse(appErr *AppError) ErrorResponse {
	return ErrorResponse{
		Error:     appErr.Message,
		Code:      appErr.Code,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// PageInfo - метаданные пагинации списка.
type PageInfo struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// NewPageInfo считает hasMore по total/limit/offset.
func NewPageInfo(total, limit, offset int) PageInfo {
	return PageInfo{
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}
