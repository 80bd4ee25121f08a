//go:build tools

package tools

// mockery v2 is used as an installed binary, so nothing is imported here.
// Run mockery from the module root to regenerate pkg/*/mocks from
// .mockery.yaml.
