// Package mocks provides test doubles for the pipedrive client.
package mocks

import (
	"context"

	pipedrive "github.com/recruitin/kandidatentekort/pkg/pipedrive"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

func ptrOrNil[T any](v any) *T {
	if v == nil {
		return nil
	}
	return v.(*T)
}

func sliceOrNil[T any](v any) []T {
	if v == nil {
		return nil
	}
	return v.([]T)
}

// SearchPersons provides a mock function with given fields: ctx, email
func (_m *MockClient) SearchPersons(ctx context.Context, email string) ([]pipedrive.Person, error) {
	ret := _m.Called(ctx, email)
	return sliceOrNil[pipedrive.Person](ret.Get(0)), ret.Error(1)
}

// CreatePerson provides a mock function with given fields: ctx, in
func (_m *MockClient) CreatePerson(ctx context.Context, in pipedrive.PersonInput) (*pipedrive.Person, error) {
	ret := _m.Called(ctx, in)
	return ptrOrNil[pipedrive.Person](ret.Get(0)), ret.Error(1)
}

// SearchOrganizations provides a mock function with given fields: ctx, name
func (_m *MockClient) SearchOrganizations(ctx context.Context, name string) ([]pipedrive.Organization, error) {
	ret := _m.Called(ctx, name)
	return sliceOrNil[pipedrive.Organization](ret.Get(0)), ret.Error(1)
}

// CreateOrganization provides a mock function with given fields: ctx, name
func (_m *MockClient) CreateOrganization(ctx context.Context, name string) (*pipedrive.Organization, error) {
	ret := _m.Called(ctx, name)
	return ptrOrNil[pipedrive.Organization](ret.Get(0)), ret.Error(1)
}

// PersonDeals provides a mock function with given fields: ctx, personID, status
func (_m *MockClient) PersonDeals(ctx context.Context, personID int, status string) ([]pipedrive.Deal, error) {
	ret := _m.Called(ctx, personID, status)
	return sliceOrNil[pipedrive.Deal](ret.Get(0)), ret.Error(1)
}

// GetDeal provides a mock function with given fields: ctx, id
func (_m *MockClient) GetDeal(ctx context.Context, id int) (*pipedrive.Deal, error) {
	ret := _m.Called(ctx, id)
	return ptrOrNil[pipedrive.Deal](ret.Get(0)), ret.Error(1)
}

// ListDeals provides a mock function with given fields: ctx, status
func (_m *MockClient) ListDeals(ctx context.Context, status string) ([]pipedrive.Deal, error) {
	ret := _m.Called(ctx, status)
	return sliceOrNil[pipedrive.Deal](ret.Get(0)), ret.Error(1)
}

// CreateDeal provides a mock function with given fields: ctx, in
func (_m *MockClient) CreateDeal(ctx context.Context, in pipedrive.DealInput) (*pipedrive.Deal, error) {
	ret := _m.Called(ctx, in)
	return ptrOrNil[pipedrive.Deal](ret.Get(0)), ret.Error(1)
}

// UpdateDeal provides a mock function with given fields: ctx, id, fields
func (_m *MockClient) UpdateDeal(ctx context.Context, id int, fields map[string]any) (*pipedrive.Deal, error) {
	ret := _m.Called(ctx, id, fields)
	return ptrOrNil[pipedrive.Deal](ret.Get(0)), ret.Error(1)
}

// AddNote provides a mock function with given fields: ctx, dealID, content
func (_m *MockClient) AddNote(ctx context.Context, dealID int, content string) (*pipedrive.Note, error) {
	ret := _m.Called(ctx, dealID, content)
	return ptrOrNil[pipedrive.Note](ret.Get(0)), ret.Error(1)
}
