package models

// All lists every table the engine owns, in migration order.
func All() []any {
	return []any{
		&User{},
		&Challenge{},
		&Enrollment{},
		&Proof{},
		&Checkin{},
		&RevenueShare{},
	}
}
