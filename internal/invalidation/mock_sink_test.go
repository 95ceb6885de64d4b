package invalidation

import "github.com/stretchr/testify/mock"

type MockSink struct {
	mock.Mock
}

func NewMockSink(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSink {
	m := &MockSink{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockSink) InvalidateTags(tags []Tag) {
	m.Called(tags)
}
