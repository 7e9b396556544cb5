package core

import (
	"context"
	"sort"
	"strings"

	"colazione/pkg/domain"
)

// Session is the identity returned by a successful login.
type Session struct {
	Username string `json:"username"`
	Group    string `json:"group"`
	Role     Role   `json:"role"`
}

// Actor returns the caller identity for subsequent operations.
func (s Session) Actor() Actor { return Actor{Username: s.Username, Role: s.Role} }

// UserInput carries the fields of a new user.
type UserInput struct {
	Username string
	Password string
	Group    string
	Role     string
}

// UserUpdate is a partial user update. An empty password or blank group is
// ignored; a nil role leaves the role untouched.
type UserUpdate struct {
	Password string
	Group    string
	Role     *string
}

// Login checks the plaintext password of username.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	var session Session
	err := s.run(ctx, "login", func(ctx context.Context) error {
		snap, err := s.store.Read(ctx, domain.SetUsers)
		if err != nil {
			return err
		}
		for _, u := range snap.Users {
			if u.Username == username && u.Password == password {
				session = Session{Username: u.Username, Group: u.Group, Role: domain.SanitizeRole(string(u.Role))}
				return nil
			}
		}
		return domain.Forbiddenf("invalid credentials")
	})
	return session, err
}

// ListUsers returns every user ordered by username.
func (s *Service) ListUsers(ctx context.Context, actor Actor) ([]User, error) {
	var users []User
	err := s.run(ctx, "list_users", func(ctx context.Context) error {
		if err := requireAdmin(actor); err != nil {
			return err
		}
		snap, err := s.store.Read(ctx, domain.SetUsers)
		if err != nil {
			return err
		}
		users = snap.Users
		sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
		return nil
	})
	return users, err
}

// CreateUser adds a user to an existing group.
func (s *Service) CreateUser(ctx context.Context, actor Actor, input UserInput) (User, Result, error) {
	var (
		created User
		res     Result
	)
	err := s.run(ctx, "create_user", func(ctx context.Context) error {
		if err := requireAdmin(actor); err != nil {
			return err
		}
		user := User{
			Username: strings.TrimSpace(input.Username),
			Password: input.Password,
			Group:    strings.TrimSpace(input.Group),
			Role:     domain.SanitizeRole(input.Role),
		}
		if user.Username == "" || user.Password == "" || user.Group == "" {
			return domain.Validationf("username, password and group are required")
		}
		var err error
		res, err = s.transact(ctx, "create_user", []RecordSet{domain.SetUsers, domain.SetGroups}, func(tx Transaction) error {
			// An unknown group outranks a taken username.
			if !tx.HasGroup(user.Group) {
				return domain.Validationf("group %q does not exist", user.Group)
			}
			var err error
			created, err = tx.CreateUser(user)
			return err
		})
		return err
	})
	return created, res, err
}

// UpdateUser applies a partial update to username. An update that changes
// nothing writes nothing.
func (s *Service) UpdateUser(ctx context.Context, actor Actor, username string, update UserUpdate) (User, Result, error) {
	var (
		updated User
		res     Result
	)
	err := s.run(ctx, "update_user", func(ctx context.Context) error {
		if err := requireAdmin(actor); err != nil {
			return err
		}
		username = strings.TrimSpace(username)
		if username == "" {
			return domain.Validationf("username is required")
		}
		var err error
		res, err = s.transact(ctx, "update_user", []RecordSet{domain.SetUsers, domain.SetGroups}, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateUser(username, func(u *User) error {
				if update.Password != "" {
					u.Password = update.Password
				}
				if group := strings.TrimSpace(update.Group); group != "" {
					u.Group = group
				}
				if update.Role != nil {
					u.Role = domain.SanitizeRole(*update.Role)
				}
				return nil
			})
			return err
		})
		return err
	})
	return updated, res, err
}

// DeleteUser removes username.
func (s *Service) DeleteUser(ctx context.Context, actor Actor, username string) (Result, error) {
	var res Result
	err := s.run(ctx, "delete_user", func(ctx context.Context) error {
		if err := requireAdmin(actor); err != nil {
			return err
		}
		username = strings.TrimSpace(username)
		if username == "" {
			return domain.Validationf("username is required")
		}
		var err error
		res, err = s.transact(ctx, "delete_user", []RecordSet{domain.SetUsers}, func(tx Transaction) error {
			return tx.DeleteUser(username)
		})
		return err
	})
	return res, err
}

// SeedAdmin creates the first administrator, adding its group when missing.
// It refuses to run once any administrator exists.
func (s *Service) SeedAdmin(ctx context.Context, input UserInput) (User, Result, error) {
	var (
		created User
		res     Result
	)
	err := s.run(ctx, "seed_admin", func(ctx context.Context) error {
		user := User{
			Username: strings.TrimSpace(input.Username),
			Password: input.Password,
			Group:    strings.TrimSpace(input.Group),
			Role:     RoleAdmin,
		}
		if user.Username == "" || user.Password == "" || user.Group == "" {
			return domain.Validationf("username, password and group are required")
		}
		var err error
		res, err = s.transact(ctx, "seed_admin", []RecordSet{domain.SetUsers, domain.SetGroups}, func(tx Transaction) error {
			if tx.CountAdmins() > 0 {
				return domain.Conflictf("an administrator already exists")
			}
			if !tx.HasGroup(user.Group) {
				if err := tx.CreateGroup(user.Group); err != nil {
					return err
				}
			}
			var err error
			created, err = tx.CreateUser(user)
			return err
		})
		return err
	})
	return created, res, err
}
