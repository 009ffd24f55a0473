package mysql

import (
	"execq/internal/model"
	"execq/pkg/constants"
	mysqlmodel "execq/pkg/store/mysql/model"
)

// toDomain converts a MySQL row to the domain Task model
func toDomain(row *mysqlmodel.Task) *model.Task {
	if row == nil {
		return nil
	}

	return &model.Task{
		ID:           row.TaskID,
		Status:       constants.TaskStatus(row.Status),
		Prompt:       row.Prompt,
		Code:         row.Code,
		Timeout:      row.Timeout,
		WorkerID:     row.WorkerID,
		Result:       row.Result,
		ErrorMessage: row.ErrorMessage,
		WebhookURL:   row.WebhookURL,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		StartedAt:    row.StartedAt,
		CompletedAt:  row.CompletedAt,
	}
}

// fromDomain converts the domain Task model to a MySQL row
func fromDomain(task *model.Task) *mysqlmodel.Task {
	if task == nil {
		return nil
	}

	return &mysqlmodel.Task{
		TaskID:       task.ID,
		Status:       task.Status.String(),
		Prompt:       task.Prompt,
		Code:         task.Code,
		Timeout:      task.Timeout,
		WorkerID:     task.WorkerID,
		Result:       task.Result,
		ErrorMessage: task.ErrorMessage,
		WebhookURL:   task.WebhookURL,
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
		StartedAt:    task.StartedAt,
		CompletedAt:  task.CompletedAt,
	}
}
