package domain

import "time"

// OrderStatus is an operator-managed label in the ordered status catalogue.
//
// The catalogue is independent of the payment flow. At most one status may
// be flagged default at any time; the mutual exclusion is enforced at the
// application layer, not by a database constraint.
type OrderStatus struct {
	ID        int64
	Name      string
	Handle    string
	Color     string
	SortOrder int32
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the status before persistence.
func (s *OrderStatus) Validate() error {
	var err error
	if s.Name == "" {
		err = AddFieldError(err, "name", "name is required")
	}
	if s.Handle == "" {
		err = AddFieldError(err, "handle", "handle is required")
	}
	if err != nil {
		ve := err.(*ValidationError)
		ve.Op = "status.validate"
		return ve
	}
	return nil
}
