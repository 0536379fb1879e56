package employee

import "time"

// Employee carries a weak back-reference to its department: a plain id, not a
// live object, resolved by query. DepartmentID goes nil when the department
// is deleted without a cascade.
type Employee struct {
	ID           uint       `gorm:"primaryKey"`
	DepartmentID *uint      `gorm:"index"`
	FullName     string     `gorm:"size:250;not null"`
	Position     string     `gorm:"size:250;not null"`
	HiredAt      *time.Time `gorm:"type:date"`
	CreatedAt    time.Time  `gorm:"not null;autoCreateTime"`
}
