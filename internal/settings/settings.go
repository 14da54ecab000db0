// Package settings loads the layered git-audit configuration.
//
// Two JSON documents are read: a global layer (per user) and a repository layer
// stored at the root of the work tree. The merged view resolves every field from
// the repository layer first and falls back to the global layer.
//
// The repository layer is written exactly once, after a contract has been
// deployed. A second write fails instead of replacing the existing record, so
// re-initialising a repository is always an explicit, visible event.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const (
	// RepositoryFile is the repository layer's file name, relative to the work tree root.
	RepositoryFile = ".git-audit.json"

	globalFile = "git-audit.json"
)

// Settings holds the repository layer and the merged view.
// SetContract is the only method that mutates it.
type Settings struct {
	globalPath string
	repository layer
	merged     layer
	logger     *zap.Logger
}

// Contract is the deployed audit contract recorded in the settings.
type Contract struct {
	Address common.Address
	Owner   common.Address
	ABI     json.RawMessage
}

// Load reads the global layer from globalPath (or the user config directory when
// empty) and the repository layer from root. Missing files are treated as empty
// layers; malformed files yield a *ConfigError.
func Load(globalPath, root string, logger *zap.Logger) (*Settings, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if globalPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, &ConfigError{Err: fmt.Errorf("resolve global config path: %w", err)}
		}
		globalPath = filepath.Join(dir, globalFile)
	}

	global, err := readLayer(globalPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("global settings layer", zap.String("path", globalPath))

	repoPath := RepositoryPath(root)
	repository, err := readLayer(repoPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("repository settings layer", zap.String("path", repoPath))

	return &Settings{
		globalPath: globalPath,
		repository: repository,
		merged:     merge(global, repository),
		logger:     logger,
	}, nil
}

// RepositoryPath returns the repository layer's path for the work tree at root.
func RepositoryPath(root string) string {
	return filepath.Join(root, RepositoryFile)
}

// GlobalPath returns the resolved global layer path.
func (s *Settings) GlobalPath() string {
	return s.globalPath
}

// ── Accessors ────────────────────────────────────────────────────────────────

// PrivateKey returns the hex-encoded signing secret.
func (s *Settings) PrivateKey() (string, error) {
	if e := s.merged.Ethereum; e != nil && e.PrivateKey != nil && *e.PrivateKey != "" {
		return *e.PrivateKey, nil
	}
	return "", missing("ethereum.private_key")
}

// RPCTarget returns the ledger endpoint URI.
func (s *Settings) RPCTarget() (string, error) {
	if e := s.merged.Ethereum; e != nil && e.RPCTarget != nil && *e.RPCTarget != "" {
		return *e.RPCTarget, nil
	}
	return "", missing("ethereum.rpc_target")
}

// ChainID returns the chain identifier transactions are signed for.
func (s *Settings) ChainID() (uint64, error) {
	if e := s.merged.Ethereum; e != nil && e.ChainID != nil {
		return *e.ChainID, nil
	}
	return 0, missing("ethereum.chain_id")
}

// Contract returns the recorded contract. ok is false until an address is known.
func (s *Settings) Contract() (c Contract, ok bool) {
	cs := s.merged.Contract
	if cs == nil || cs.Address == nil {
		return Contract{}, false
	}
	c.Address = *cs.Address
	if cs.Owner != nil {
		c.Owner = *cs.Owner
	}
	c.ABI = append(json.RawMessage(nil), cs.ABI...)
	return c, true
}

// LogTarget returns the optional log destination (path, file:// or unix:// URI).
func (s *Settings) LogTarget() string {
	if l := s.merged.Logging; l != nil && l.File != nil {
		return *l.File
	}
	return ""
}

// MetricsTextfile returns the optional Prometheus textfile path.
func (s *Settings) MetricsTextfile() string {
	if m := s.merged.Metrics; m != nil && m.Textfile != nil {
		return *m.Textfile
	}
	return ""
}

// JournalDatabaseURL returns the optional PostgreSQL URL of the local journal.
func (s *Settings) JournalDatabaseURL() string {
	if j := s.merged.Journal; j != nil && j.DatabaseURL != nil {
		return *j.DatabaseURL
	}
	return ""
}

// ── Mutation and persistence ─────────────────────────────────────────────────

// SetContract records a deployed contract in the repository layer and the merged
// view. The global layer is never touched.
func (s *Settings) SetContract(address, owner common.Address, abiJSON string) error {
	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(abiJSON)); err != nil {
		return &ConfigError{Field: "contract.abi", Err: err}
	}

	abi := json.RawMessage(compact.Bytes())
	s.repository.Contract = &contractSection{
		Address: &address,
		Owner:   &owner,
		ABI:     abi,
	}
	merged := *s.repository.Contract
	s.merged.Contract = &merged
	return nil
}

// WriteRepositorySettings persists the repository layer under root and returns
// the file path. It fails, wrapping fs.ErrExist, when the file already exists.
// The signing secret is never written.
func (s *Settings) WriteRepositorySettings(root string) (string, error) {
	out := s.repository
	if out.Ethereum != nil {
		eth := *out.Ethereum
		eth.PrivateKey = nil
		out.Ethereum = &eth
		if eth.empty() {
			out.Ethereum = nil
		}
	}

	buf, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal repository settings: %w", err)
	}
	buf = append(buf, '\n')

	p := RepositoryPath(root)
	s.logger.Debug("writing repository settings", zap.String("path", p))

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("repository settings %s already exist: %w", p, err)
		}
		return "", fmt.Errorf("create repository settings: %w", err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return "", fmt.Errorf("write repository settings: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close repository settings: %w", err)
	}
	return p, nil
}

func missing(field string) error {
	return &ConfigError{Field: field, Err: ErrMissingField}
}
