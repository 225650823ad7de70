package models

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func NewUserResponse(u *User) *UserResponse {
	return &UserResponse{
		ID:    u.ID.String(),
		Email: u.Email,
		Role:  u.Role.String(),
	}
}
