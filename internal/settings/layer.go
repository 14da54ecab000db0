package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"

	"github.com/ethereum/go-ethereum/common"
)

// layer mirrors the JSON document. Every field is optional so that absence can
// be told apart from a zero value while merging.
type layer struct {
	Ethereum *ethereumSection `json:"ethereum,omitempty"`
	Logging  *loggingSection  `json:"logging,omitempty"`
	Metrics  *metricsSection  `json:"metrics,omitempty"`
	Journal  *journalSection  `json:"journal,omitempty"`
	Contract *contractSection `json:"contract,omitempty"`
}

type ethereumSection struct {
	PrivateKey *string `json:"private_key,omitempty"`
	RPCTarget  *string `json:"rpc_target,omitempty"`
	ChainID    *uint64 `json:"chain_id,omitempty"`
}

func (e ethereumSection) empty() bool {
	return e.PrivateKey == nil && e.RPCTarget == nil && e.ChainID == nil
}

type loggingSection struct {
	File *string `json:"file,omitempty"`
}

type metricsSection struct {
	Textfile *string `json:"textfile,omitempty"`
}

type journalSection struct {
	DatabaseURL *string `json:"database_url,omitempty"`
}

type contractSection struct {
	Address *common.Address `json:"address,omitempty"`
	Owner   *common.Address `json:"owner,omitempty"`
	ABI     json.RawMessage `json:"abi,omitempty"`
}

// readLayer decodes the file at path. A missing file is an empty layer.
func readLayer(path string) (layer, error) {
	var l layer
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return l, nil
		}
		return l, &ConfigError{Path: path, Err: err}
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return l, nil
	}
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&l); err != nil {
		return layer{}, &ConfigError{Path: path, Err: err}
	}
	return l, nil
}

// merge resolves each field from over first and base second.
func merge(base, over layer) layer {
	var m layer

	if base.Ethereum != nil || over.Ethereum != nil {
		b, o := deref(base.Ethereum), deref(over.Ethereum)
		m.Ethereum = &ethereumSection{
			PrivateKey: pick(o.PrivateKey, b.PrivateKey),
			RPCTarget:  pick(o.RPCTarget, b.RPCTarget),
			ChainID:    pick(o.ChainID, b.ChainID),
		}
	}
	if base.Logging != nil || over.Logging != nil {
		b, o := deref(base.Logging), deref(over.Logging)
		m.Logging = &loggingSection{File: pick(o.File, b.File)}
	}
	if base.Metrics != nil || over.Metrics != nil {
		b, o := deref(base.Metrics), deref(over.Metrics)
		m.Metrics = &metricsSection{Textfile: pick(o.Textfile, b.Textfile)}
	}
	if base.Journal != nil || over.Journal != nil {
		b, o := deref(base.Journal), deref(over.Journal)
		m.Journal = &journalSection{DatabaseURL: pick(o.DatabaseURL, b.DatabaseURL)}
	}
	if base.Contract != nil || over.Contract != nil {
		b, o := deref(base.Contract), deref(over.Contract)
		c := &contractSection{
			Address: pick(o.Address, b.Address),
			Owner:   pick(o.Owner, b.Owner),
			ABI:     o.ABI,
		}
		if c.ABI == nil {
			c.ABI = b.ABI
		}
		m.Contract = c
	}
	return m
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func pick[T any](over, base *T) *T {
	if over != nil {
		return over
	}
	return base
}
