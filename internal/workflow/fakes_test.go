package workflow_test

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/jmerrifield20/git-audit/internal/contract"
	"github.com/jmerrifield20/git-audit/internal/settings"
	"github.com/jmerrifield20/git-audit/internal/workflow"
	"github.com/jmerrifield20/git-audit/pkg/ledger"
	"github.com/jmerrifield20/git-audit/pkg/revision"
)

const devSecret = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	devAddress      = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	contractAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	txHash          = common.HexToHash("0x8c9b1b7e3bd0b2d0b3f7a2a7c3d1a5b4b1e8f3d2c6a9e0f1a2b3c4d5e6f70819")
)

// ── Fake ledger ─────────────────────────────────────────────────────────

// fakeLedger records every request and answers from canned values.
type fakeLedger struct {
	mu        sync.Mutex
	requests  []string
	gasPrice  *big.Int
	nonce     uint64
	gas       uint64
	receipt   *ledger.Receipt
	callOut   []byte
	estimated ethereum.CallMsg
	called    ethereum.CallMsg
	submitted []byte
	failOn    string
}

func newFakeLedger() *fakeLedger {
	one := uint64(1)
	return &fakeLedger{
		gasPrice: big.NewInt(2_000_000_000),
		nonce:    5,
		gas:      46_000,
		receipt: &ledger.Receipt{
			TxHash:      txHash,
			Status:      ledger.StatusSuccess,
			RawStatus:   &one,
			BlockNumber: big.NewInt(12),
		},
	}
}

func (f *fakeLedger) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, method)
	if method == f.failOn {
		return &ledger.RPCError{Method: method, Err: errors.New("connection refused")}
	}
	return nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeLedger) GasPrice(context.Context) (*big.Int, error) {
	if err := f.record("eth_gasPrice"); err != nil {
		return nil, err
	}
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeLedger) PendingNonce(_ context.Context, _ common.Address) (uint64, error) {
	if err := f.record("eth_getTransactionCount"); err != nil {
		return 0, err
	}
	return f.nonce, nil
}

func (f *fakeLedger) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := f.record("eth_estimateGas"); err != nil {
		return 0, err
	}
	f.estimated = msg
	return f.gas, nil
}

func (f *fakeLedger) Call(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if err := f.record("eth_call"); err != nil {
		return nil, err
	}
	f.called = msg
	return f.callOut, nil
}

func (f *fakeLedger) SubmitConfirmed(_ context.Context, raw []byte) (*ledger.Receipt, error) {
	if err := f.record("eth_sendRawTransaction"); err != nil {
		return nil, err
	}
	f.submitted = raw
	r := *f.receipt
	return &r, nil
}

// ── Fake history ────────────────────────────────────────────────────────

type fakeHistory struct {
	root     string
	tip      revision.ID
	hasTip   bool
	ancestry revision.Set
	commits  []string // messages
	files    []string
}

func (h *fakeHistory) Root() string { return h.root }

func (h *fakeHistory) Tip() (revision.ID, bool, error) { return h.tip, h.hasTip, nil }

func (h *fakeHistory) Ancestry(tip revision.ID) (revision.Set, error) {
	if tip != h.tip {
		return nil, errors.New("unexpected tip")
	}
	return h.ancestry, nil
}

func (h *fakeHistory) CommitFile(rel, message string) (revision.ID, error) {
	h.files = append(h.files, rel)
	h.commits = append(h.commits, message)
	return revision.MustParse("9999999999999999999999999999999999999999"), nil
}

// ── Fixture ─────────────────────────────────────────────────────────────

type fixture struct {
	settings  *settings.Settings
	history   *fakeHistory
	ledger    *fakeLedger
	connected int
}

// newFixture loads settings whose global layer holds the signing inputs.
func newFixture(t *testing.T, global string) *fixture {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "repo")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	globalPath := filepath.Join(dir, "global.json")
	if err := os.WriteFile(globalPath, []byte(global), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := settings.Load(globalPath, root, zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return &fixture{
		settings: s,
		history:  &fakeHistory{root: root},
		ledger:   newFakeLedger(),
	}
}

const signingSettings = `{"ethereum":{"private_key":"` + devSecret + `","rpc_target":"http://127.0.0.1:8545","chain_id":1337}}`

func (f *fixture) initialized(t *testing.T) {
	t.Helper()
	if err := f.settings.SetContract(contractAddress, devAddress, contract.Audit().ABI); err != nil {
		t.Fatalf("SetContract: %v", err)
	}
}

func (f *fixture) workflow(opts ...workflow.Option) *workflow.Workflow {
	connect := func(_ context.Context, target string) (ledger.Client, error) {
		f.connected++
		return f.ledger, nil
	}
	return workflow.New(f.settings, f.history, connect, opts...)
}
