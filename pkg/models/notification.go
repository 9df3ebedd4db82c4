package models

import "time"

type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskInFlight  TaskState = "in_flight"
	TaskDelivered TaskState = "delivered"
	TaskAbandoned TaskState = "abandoned"
)

func (s TaskState) IsTerminal() bool {
	return s == TaskDelivered || s == TaskAbandoned
}

// NotificationTask is a unit of outbound work. The notifier owns the task once enqueued;
// callers keep only their copy.
type NotificationTask struct {
	ID        string                 `json:"id" bson:"task_id"`
	EventID   string                 `json:"event_id" bson:"event_id"`
	Route     string                 `json:"route" bson:"route"`
	Recipient string                 `json:"recipient" bson:"recipient"`
	Template  string                 `json:"template" bson:"template"`
	Message   string                 `json:"message" bson:"message"`
	Data      map[string]interface{} `json:"data,omitempty" bson:"data,omitempty"`

	State         TaskState `json:"state" bson:"state"`
	Attempts      int       `json:"attempts" bson:"attempts"`
	NextAttemptAt time.Time `json:"next_attempt_at" bson:"next_attempt_at"`
	LastError     string    `json:"last_error,omitempty" bson:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" bson:"updated_at"`
}
