// Package models holds ready-made response models used by the example programs, the
// CLI and the tests. Each one is a plain struct described through its json,
// jsonschema and validate tags.
package models

import "time"

// UserDetail is the classic "Jason is 25 years old" extraction target.
type UserDetail struct {
	Name string `json:"name" validate:"required" jsonschema:"description=The user's full name"`
	Age  int    `json:"age" validate:"gte=0,lte=150" jsonschema:"required"`
}

// Instructions steers the model towards the fields of UserDetail.
func (UserDetail) Instructions() string {
	return "Extract the user's name and age from the text. Use the exact name as written."
}

// PhoneNumber is one number of a Contact.
type PhoneNumber struct {
	Number string `json:"number" validate:"required"`
	Type   string `json:"type" validate:"omitempty,oneof=home work mobile"`
}

// Contact is a user with nested phone numbers and a sign-up date.
type Contact struct {
	Name         string        `json:"name" validate:"required"`
	Age          int           `json:"age" jsonschema:"required"`
	Subscribed   bool          `json:"subscribed" jsonschema:"default=false"`
	CreatedAt    time.Time     `json:"created_at"`
	PhoneNumbers []PhoneNumber `json:"phone_numbers" validate:"dive" jsonschema:"default=[]"`
}
