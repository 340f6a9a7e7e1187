package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/jake-scott/findmy-relay/internal/pkg/findapi"
)

// MockClient is a mock implementation of the findapi.Client interface
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Authenticate(ctx context.Context, creds findapi.Credentials) (findapi.Session, error) {
	args := m.Called(ctx, creds)
	sess, _ := args.Get(0).(findapi.Session)
	return sess, args.Error(1)
}

// MockSession is a mock implementation of the findapi.Session interface
type MockSession struct {
	mock.Mock
}

func (m *MockSession) Devices(ctx context.Context) ([]findapi.Device, error) {
	args := m.Called(ctx)
	devices, _ := args.Get(0).([]findapi.Device)
	return devices, args.Error(1)
}

// MockDevice is a mock implementation of the findapi.Device interface
type MockDevice struct {
	mock.Mock
}

func (m *MockDevice) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockDevice) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockDevice) Location(ctx context.Context) (*findapi.Reading, error) {
	args := m.Called(ctx)
	reading, _ := args.Get(0).(*findapi.Reading)
	return reading, args.Error(1)
}

// NewMockDevice returns a device that answers ID and Name as given
func NewMockDevice(id, name string) *MockDevice {
	d := new(MockDevice)
	d.On("ID").Return(id).Maybe()
	d.On("Name").Return(name).Maybe()
	return d
}
