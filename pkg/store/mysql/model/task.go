package model

import "time"

// Task MySQL model for tasks table
type Task struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID       string     `gorm:"column:task_id;type:varchar(255);not null;uniqueIndex:idx_task_id_unique" json:"task_id"`
	Status       string     `gorm:"column:status;type:varchar(50);not null;index:idx_status" json:"status"`
	Prompt       string     `gorm:"column:prompt;type:text;not null" json:"prompt"`
	Code         string     `gorm:"column:code;type:mediumtext" json:"code"`
	Timeout      int        `gorm:"column:timeout;not null;default:300" json:"timeout"`
	WorkerID     string     `gorm:"column:worker_id;type:varchar(255);index:idx_worker_id" json:"worker_id"`
	Result       string     `gorm:"column:result;type:mediumtext" json:"result"`
	ErrorMessage string     `gorm:"column:error_message;type:text" json:"error_message"`
	WebhookURL   string     `gorm:"column:webhook_url;type:varchar(1000)" json:"webhook_url"`
	CreatedAt    time.Time  `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3);index:idx_created_at" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"updated_at"`
	StartedAt    *time.Time `gorm:"column:started_at;type:datetime(3)" json:"started_at"`
	CompletedAt  *time.Time `gorm:"column:completed_at;type:datetime(3)" json:"completed_at"`
}

// TableName specifies the table name for Task
func (Task) TableName() string {
	return "tasks"
}
