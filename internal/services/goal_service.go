package services

import (
	"context"
	"fmt"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

type GoalService struct {
	store storage.GoalStore
}

func NewGoalService(store storage.GoalStore) *GoalService {
	return &GoalService{store: store}
}

func (s *GoalService) Create(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	g.UserID = core.DefaultUserID
	g.Name = strings.TrimSpace(g.Name)
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	saved, err := s.store.CreateGoal(ctx, g)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("save goal: %w", err)
	}
	return saved, nil
}

func (s *GoalService) Get(ctx context.Context, id int64) (core.SavingsGoal, error) {
	return s.store.GetGoal(ctx, id)
}

func (s *GoalService) List(ctx context.Context) ([]core.SavingsGoal, error) {
	goals, err := s.store.ListGoals(ctx)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	if goals == nil {
		goals = []core.SavingsGoal{}
	}
	return goals, nil
}

// UpdateProgress sets the saved amount. Progress may exceed the target.
func (s *GoalService) UpdateProgress(ctx context.Context, id int64, progress core.Money) (core.SavingsGoal, error) {
	if progress.Cents < 0 {
		return core.SavingsGoal{}, core.ErrInvalidProgress
	}
	return s.store.UpdateGoalProgress(ctx, id, progress)
}

type UserService struct {
	store storage.UserStore
}

func NewUserService(store storage.UserStore) *UserService {
	return &UserService{store: store}
}

// Create registers a user. A duplicate email yields core.ErrConflict.
func (s *UserService) Create(ctx context.Context, email string) (core.User, error) {
	u := core.User{Email: strings.TrimSpace(email)}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	saved, err := s.store.CreateUser(ctx, u)
	if err != nil {
		return core.User{}, fmt.Errorf("save user: %w", err)
	}
	return saved, nil
}

func (s *UserService) List(ctx context.Context) ([]core.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
