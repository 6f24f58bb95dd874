package domain

import (
	"context"
	"time"
)

// DispatchJobCause описывает источник запуска рассылки.
type DispatchJobCause string

const (
	// DispatchCauseManual — запуск через административный API.
	DispatchCauseManual DispatchJobCause = "manual"
	// DispatchCauseScheduled — запуск по расписанию.
	DispatchCauseScheduled DispatchJobCause = "scheduled"
)

// DispatchJob содержит информацию о задаче ежедневной рассылки.
type DispatchJob struct {
	ID          string           `json:"job_id"`
	Day         string           `json:"day"`
	BaseURL     string           `json:"base_url,omitempty"`
	RequestedAt time.Time        `json:"requested_at"`
	Cause       DispatchJobCause `json:"cause"`
}

// DispatchQueue описывает очередь задач рассылки.
type DispatchQueue interface {
	Enqueue(ctx context.Context, job DispatchJob) error
	Receive(ctx context.Context) (DispatchJob, AckFunc, error)
}

// AckFunc подтверждает обработку задачи или возвращает её в очередь.
type AckFunc func(success bool) error
