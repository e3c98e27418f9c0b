package users

import "context"

// Repo is the user store. Lookups return errors.ErrUserNotFound when no
// user matches; implementations must not invent a softer signal.
type Repo interface {
	Upsert(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	List(ctx context.Context) ([]*User, error)
}
