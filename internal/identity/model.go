package identity

import "time"

// UserType is the actor role fixed at signup.
type UserType string

const (
	TypeCustomer UserType = "customer"
	TypeRider    UserType = "rider"
	TypeSME      UserType = "sme"
)

// Valid reports whether t is one of the known actor roles.
func (t UserType) Valid() bool {
	switch t {
	case TypeCustomer, TypeRider, TypeSME:
		return true
	default:
		return false
	}
}

// User is the stored identity record. UserType never changes after creation.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"passwordHash"`
	FullName     string    `json:"fullName"`
	Phone        string    `json:"phone"`
	UserType     UserType  `json:"userType"`
	BusinessName string    `json:"businessName,omitempty"`
	VehicleType  string    `json:"vehicleType,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Actor is the resolved caller identity passed into domain services.
type Actor struct {
	ID    string
	Type  UserType
	Name  string
	Phone string
}

// Actor projects the user onto the fields domain services need.
func (u User) Actor() Actor {
	name := u.FullName
	if u.UserType == TypeSME && u.BusinessName != "" {
		name = u.BusinessName
	}
	return Actor{ID: u.ID, Type: u.UserType, Name: name, Phone: u.Phone}
}

// Profile is the public view of a user.
type Profile struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Phone        string    `json:"phone"`
	UserType     UserType  `json:"userType"`
	BusinessName string    `json:"businessName,omitempty"`
	VehicleType  string    `json:"vehicleType,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Profile strips credentials from the user record.
func (u User) Profile() Profile {
	return Profile{
		ID:           u.ID,
		Email:        u.Email,
		FullName:     u.FullName,
		Phone:        u.Phone,
		UserType:     u.UserType,
		BusinessName: u.BusinessName,
		VehicleType:  u.VehicleType,
		CreatedAt:    u.CreatedAt,
	}
}

// SignupInput carries the fields accepted at registration.
type SignupInput struct {
	Email        string   `json:"email" validate:"required,email"`
	Password     string   `json:"password" validate:"required,min=8"`
	FullName     string   `json:"fullName" validate:"required,max=120"`
	Phone        string   `json:"phone" validate:"required,min=7,max=20"`
	UserType     UserType `json:"userType" validate:"required,oneof=customer rider sme"`
	BusinessName string   `json:"businessName" validate:"required_if=UserType sme,max=120"`
	VehicleType  string   `json:"vehicleType" validate:"omitempty,oneof=bicycle motorcycle car van"`
}

// Fiber locals populated by the authentication middleware.
const (
	LocalUserID = "user_id"
	LocalActor  = "actor"
)
