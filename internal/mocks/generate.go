// Package mocks provides gomock mocks for the persistence ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our store interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	profiles := mocks.NewMockProfileStore(ctrl)
//	profiles.EXPECT().GetProfile(gomock.Any(), "user-1").Return(profile, nil)
package mocks

// Generate mocks for ProfileStore and RoleStore from internal/ports.
// ProfileStore: GetProfile, CreateProfile, TouchLastLogin
// RoleStore: GetRole, CreateRole
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=store_mock.go github.com/alungalsinan/groot-scribe-studio/internal/ports ProfileStore,RoleStore

// Generate mock for SessionStore: Save, Get, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_store_mock.go github.com/alungalsinan/groot-scribe-studio/internal/ports SessionStore
