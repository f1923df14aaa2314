package datasets

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/clover/pkg/errors"
)

//go:embed definitions/*.yaml
var builtin embed.FS

// Registry holds the datasets known to a process. It is built at startup and
// handed to whatever generates datasets.
type Registry struct {
	mu       sync.RWMutex
	datasets map[string]Dataset
}

func NewRegistry() *Registry {
	return &Registry{
		datasets: map[string]Dataset{},
	}
}

// Register validates and adds d. Names are unique.
func (r *Registry) Register(d Dataset) error {
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.datasets[d.Name]; ok {
		return errors.New(errors.KindConflict, "dataset is already registered").AddDataset(d.Name)
	}
	r.datasets[d.Name] = d
	return nil
}

func (r *Registry) Get(name string) (Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.datasets[name]
	if !ok {
		return Dataset{}, errors.New(errors.KindNotFound, "unknown dataset").AddDataset(name)
	}
	return d, nil
}

// List returns the registered datasets ordered by name.
func (r *Registry) List() []Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Dataset, 0, len(r.datasets))
	for _, d := range r.datasets {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// LoadBuiltin registers the definitions shipped with the binary.
func LoadBuiltin(r *Registry) error {
	return LoadFS(r, builtin, "definitions")
}

// LoadDir registers every *.yaml definition in dir.
func LoadDir(r *Registry, dir string) error {
	return LoadFS(r, os.DirFS(dir), ".")
}

func LoadFS(r *Registry, fsys fs.FS, dir string) error {
	matches, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return errors.Wrap(errors.KindConfiguration, err)
	}
	sort.Strings(matches)

	for _, match := range matches {
		data, err := fs.ReadFile(fsys, match)
		if err != nil {
			return errors.Wrap(errors.KindIO, err)
		}

		var d Dataset
		if err := yaml.Unmarshal(data, &d); err != nil {
			return errors.Newf(errors.KindConfiguration, "parse %s: %w", match, err)
		}
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}
