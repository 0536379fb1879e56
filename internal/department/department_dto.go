package department

import (
	"encoding/json"
	"time"

	"go-orgtree/internal/employee"
)

type DeleteMode string

const (
	DeleteModeCascade  DeleteMode = "cascade"
	DeleteModeReassign DeleteMode = "reassign"
)

type CreateDepartmentRequest struct {
	Name     string `json:"name" binding:"required"`
	ParentID *uint  `json:"parent_id"`
}

// OptionalParent distinguishes an absent parent_id from an explicit null in
// PATCH bodies: null moves the department to the root, absent leaves it alone.
type OptionalParent struct {
	Set   bool
	Value *uint
}

func (o *OptionalParent) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

type UpdateDepartmentRequest struct {
	Name     *string        `json:"name"`
	ParentID OptionalParent `json:"parent_id"`
}

type GetSubtreeOptions struct {
	Depth            int
	IncludeEmployees bool
}

type DepartmentResponse struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	ParentID  *uint     `json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`
}

// DepartmentTreeResponse is the GET payload: the department itself, its
// strict descendants up to the requested depth as a flat list, and optionally
// the employees of the whole collected set sorted by created_at.
type DepartmentTreeResponse struct {
	Department DepartmentResponse           `json:"department"`
	Children   []DepartmentResponse         `json:"children"`
	Employees  *[]employee.EmployeeResponse `json:"employees,omitempty"`
}
