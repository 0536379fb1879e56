package employee

import "time"

type CreateEmployeeRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Position string `json:"position" binding:"required"`
	HiredAt  string `json:"hired_at"`
}

type EmployeeResponse struct {
	ID           uint      `json:"id"`
	DepartmentID *uint     `json:"department_id"`
	FullName     string    `json:"full_name"`
	Position     string    `json:"position"`
	HiredAt      *string   `json:"hired_at,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ToResponse is exported because the department subtree endpoint embeds
// employee payloads in its own response.
func ToResponse(empl Employee) EmployeeResponse {
	var hiredAt *string
	if empl.HiredAt != nil {
		formatted := empl.HiredAt.Format("2006-01-02")
		hiredAt = &formatted
	}

	return EmployeeResponse{
		ID:           empl.ID,
		DepartmentID: empl.DepartmentID,
		FullName:     empl.FullName,
		Position:     empl.Position,
		HiredAt:      hiredAt,
		CreatedAt:    empl.CreatedAt,
	}
}
