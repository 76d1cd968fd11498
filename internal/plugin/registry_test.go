package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/sc/internal/schema"
)

type fakeAdapter struct {
	meta Metadata
}

var _ ToolAdapter = (*fakeAdapter)(nil)

func (f *fakeAdapter) Metadata() Metadata { return f.meta }
func (f *fakeAdapter) Setup(ctx context.Context, s *schema.Store, step, index string) error {
	return nil
}
func (f *fakeAdapter) PreProcess(ctx context.Context, s *schema.Store, step, index string) error {
	return nil
}
func (f *fakeAdapter) PostProcess(ctx context.Context, s *schema.Store, step, index string) error {
	return nil
}
func (f *fakeAdapter) ParseVersion(stdout string) (string, error) { return stdout, nil }
func (f *fakeAdapter) RuntimeOptions(ctx context.Context, s *schema.Store, step, index string) ([]string, error) {
	return nil, nil
}
func (f *fakeAdapter) InputFiles(step, index string) []string  { return nil }
func (f *fakeAdapter) OutputFiles(step, index string) []string { return nil }

func newFakeAdapter(name string, deps ...Dependency) *fakeAdapter {
	return &fakeAdapter{meta: Metadata{Name: name, Version: "1.0.0", APIVersion: "1.x", Dependencies: deps}}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := &Registry{adapters: make(map[string]ToolAdapter), config: DefaultConfig()}

	require.NoError(t, r.Register(newFakeAdapter("synth")))

	got, err := r.Get("synth")
	require.NoError(t, err)
	assert.Equal(t, "synth", got.Metadata().Name)

	_, err = r.Get("missing")
	assert.Error(t, err)
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := &Registry{adapters: make(map[string]ToolAdapter), config: DefaultConfig()}
	require.NoError(t, r.Register(newFakeAdapter("synth")))
	assert.Error(t, r.Register(newFakeAdapter("synth")))
}

func TestRegistryRejectsInvalidMetadata(t *testing.T) {
	r := &Registry{adapters: make(map[string]ToolAdapter), config: DefaultConfig()}
	assert.Error(t, r.Register(&fakeAdapter{meta: Metadata{Name: "bad", Version: "not-semver", APIVersion: "1.x"}}))
}

func TestRegistryNames(t *testing.T) {
	r := &Registry{adapters: make(map[string]ToolAdapter), config: DefaultConfig()}
	require.NoError(t, r.Register(newFakeAdapter("pnr")))
	require.NoError(t, r.Register(newFakeAdapter("synth")))
	assert.Equal(t, []string{"pnr", "synth"}, r.Names())
}

func TestRegistryCheckDependenciesMissing(t *testing.T) {
	r := &Registry{adapters: make(map[string]ToolAdapter), config: &RegistryConfig{DependencyPolicy: PolicyStrict}}
	require.NoError(t, r.Register(newFakeAdapter("pnr", Dependency{Name: "synth"})))

	err := r.CheckDependencies()
	require.Error(t, err)
	var missing ErrMissingDependency
	assert.ErrorAs(t, err, &missing)
}

func TestRegistryCheckDependenciesCircular(t *testing.T) {
	r := &Registry{adapters: make(map[string]ToolAdapter), config: &RegistryConfig{DependencyPolicy: PolicyStrict}}
	require.NoError(t, r.Register(newFakeAdapter("a", Dependency{Name: "b"})))
	require.NoError(t, r.Register(newFakeAdapter("b", Dependency{Name: "a"})))

	err := r.CheckDependencies()
	require.Error(t, err)
	var cycle ErrCircularDependency
	assert.ErrorAs(t, err, &cycle)
}

func TestRegistryCheckDependenciesGracefulSkipsMissing(t *testing.T) {
	r := &Registry{adapters: make(map[string]ToolAdapter), config: &RegistryConfig{DependencyPolicy: PolicyGraceful}}
	require.NoError(t, r.Register(newFakeAdapter("pnr", Dependency{Name: "synth"})))
	assert.NoError(t, r.CheckDependencies())
}

func TestRegistryCheckDependenciesVersionConstraint(t *testing.T) {
	r := &Registry{adapters: make(map[string]ToolAdapter), config: &RegistryConfig{DependencyPolicy: PolicyStrict}}
	require.NoError(t, r.Register(newFakeAdapter("synth")))
	require.NoError(t, r.Register(newFakeAdapter("pnr", Dependency{Name: "synth", VersionConstraint: "2.x"})))

	assert.Error(t, r.CheckDependencies())
}
