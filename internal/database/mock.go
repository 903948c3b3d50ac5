package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockStateRepository struct {
	mock.Mock
}

func (m *MockStateRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStateRepository) Load(ctx context.Context, key string, v any) (bool, error) {
	args := m.Called(ctx, key, v)
	return args.Bool(0), args.Error(1)
}

func (m *MockStateRepository) Save(ctx context.Context, key string, v any) error {
	args := m.Called(ctx, key, v)
	return args.Error(0)
}

func (m *MockStateRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
