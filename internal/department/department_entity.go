package department

import "time"

// Department is a node in the org tree. ParentID nil marks a root; the parent
// graph restricted to non-nil links must stay acyclic, which is enforced by
// the service before every parent-pointer mutation.
type Department struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"size:250;not null"`
	ParentID  *uint     `gorm:"index"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}
