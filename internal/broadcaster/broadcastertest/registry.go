// Package broadcastertest provides a testify mock of broadcaster.Registry.
package broadcastertest

import (
	"github.com/goevery/realtimesync/internal/broadcaster"
	"github.com/stretchr/testify/mock"
)

var _ broadcaster.Registry = (*MockRegistry)(nil)

type MockRegistry struct {
	mock.Mock
}

func NewMockRegistry(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRegistry {
	m := &MockRegistry{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockRegistry) Broadcast(message broadcaster.Message) {
	m.Called(message)
}

func (m *MockRegistry) Register(connection *broadcaster.Connection) error {
	args := m.Called(connection)

	return args.Error(0)
}

func (m *MockRegistry) Disconnect(connectionId string) {
	m.Called(connectionId)
}
