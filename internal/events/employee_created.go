package events

import "time"

const EmployeeLifecycleTopic = "org.employee.lifecycle.v1"

type EmployeeCreatedEvent struct {
	EventType    string    `json:"event_type"`
	RequestID    string    `json:"request_id,omitempty"`
	EmployeeID   uint      `json:"employee_id"`
	DepartmentID uint      `json:"department_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}
