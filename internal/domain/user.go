package domain

// User — профиль пользователя, сохранённый вместе с токеном сессии.
type User struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Credentials — результат входа или регистрации.
type Credentials struct {
	Token string
	User  User
}
