package discover

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Role keys. These name the logical artifacts the patch catalogue targets.
const (
	RoleAgentFactory   = "agent_factory"
	RoleProviderConfig = "provider_config"
	RoleModelStore     = "model_store"
	RoleModelPicker    = "model_picker"
)

// Discovery failures are always fatal: proceeding with a wrong file risks
// corrupting unrelated code.
var (
	ErrNoMatch   = errors.New("no file matches fingerprint")
	ErrAmbiguous = errors.New("multiple files match fingerprint")
)

// Files holds the resolved paths for every role, relative to the extracted
// directory. Filenames are kept separately because downstream roles are pinned
// by the import statements naming them.
type Files struct {
	AgentFactory   string `json:"agent_factory"`
	ProviderConfig string `json:"provider_config"`
	ModelStore     string `json:"model_store"`
	ModelPicker    string `json:"model_picker"`

	ProviderConfigFile string `json:"provider_config_file"`
	ModelStoreFile     string `json:"model_store_file"`
}

// Path returns the relative path for a role key.
func (f *Files) Path(role string) (string, bool) {
	switch role {
	case RoleAgentFactory:
		return f.AgentFactory, true
	case RoleProviderConfig:
		return f.ProviderConfig, true
	case RoleModelStore:
		return f.ModelStore, true
	case RoleModelPicker:
		return f.ModelPicker, true
	}
	return "", false
}

// Locator resolves every role inside one extracted tree.
type Locator struct {
	root         string
	chunksRel    string
	agentFactory string
	log          *zap.Logger
}

func NewLocator(root, chunksRel, agentFactoryRel string, log *zap.Logger) *Locator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Locator{root: root, chunksRel: chunksRel, agentFactory: agentFactoryRel, log: log}
}

// Discover resolves all four roles in dependency order: the provider config
// chunk first, then the model store (which must import from it), then the
// model picker (which must import from the model store).
func (l *Locator) Discover() (*Files, error) {
	chunksDir := filepath.Join(l.root, l.chunksRel)
	if info, err := os.Stat(chunksDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("chunks directory not found: %s", chunksDir)
	}

	files := &Files{AgentFactory: l.agentFactory}
	if _, err := os.Stat(filepath.Join(l.root, l.agentFactory)); err != nil {
		return nil, fmt.Errorf("%s not found at %s", RoleAgentFactory, l.agentFactory)
	}

	var err error
	files.ProviderConfig, files.ProviderConfigFile, err = l.locate(chunksDir, providerConfigFingerprint())
	if err != nil {
		return nil, err
	}
	files.ModelStore, files.ModelStoreFile, err = l.locate(chunksDir, modelStoreFingerprint(files.ProviderConfigFile))
	if err != nil {
		return nil, err
	}
	files.ModelPicker, _, err = l.locate(chunksDir, modelPickerFingerprint(files.ModelStoreFile))
	if err != nil {
		return nil, err
	}
	return files, nil
}

// locate scans every .js file in dir and demands exactly one fingerprint
// match. Zero or multiple matches abort discovery.
func (l *Locator) locate(dir string, fp Fingerprint) (rel, filename string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", "", fmt.Errorf("scan %s: %w", dir, err)
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".js") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return "", "", fmt.Errorf("read %s: %w", e.Name(), err)
		}
		if fp.Match(string(data)) {
			candidates = append(candidates, e.Name())
		}
	}

	switch len(candidates) {
	case 1:
		l.log.Debug("role resolved", zap.String("role", fp.Role), zap.String("file", candidates[0]))
		return filepath.Join(l.chunksRel, candidates[0]), candidates[0], nil
	case 0:
		return "", "", fmt.Errorf("%s: %w", fp.Role, ErrNoMatch)
	default:
		return "", "", fmt.Errorf("%s: %w: %s", fp.Role, ErrAmbiguous, strings.Join(candidates, ", "))
	}
}
