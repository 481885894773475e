package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/flowrelay/flowrelay/pkg/feed"
	"github.com/flowrelay/flowrelay/pkg/store"
)

// MockFeed is a mock implementation of feed.Feed.
type MockFeed struct {
	mock.Mock
}

func (m *MockFeed) Publish(ctx context.Context, event feed.Event) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}

func (m *MockFeed) Subscribe(ctx context.Context, filter store.Filter) (*feed.Subscription, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*feed.Subscription), args.Error(1)
}

func (m *MockFeed) Close() error {
	args := m.Called()

	return args.Error(0)
}
