package registry

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"CoVault/internal/ledger"
	"CoVault/internal/logger"
	"CoVault/internal/storage"
	"CoVault/internal/wallet"
)

// Storage key layout:
//   "f:n"              -> next creation sequence (u64 LE)
//   "f:w" + addr       -> creator address, marks addr as a known wallet
//   "f:c" + creator + seq (u64 BE) -> wallet address, per-creator index
var (
	keySequence      = []byte("f:n")
	keyWalletPrefix  = []byte("f:w")
	keyCreatorPrefix = []byte("f:c")
)

// Options configures collaborators shared by every wallet the registry
// creates or opens.
type Options struct {
	// Now supplies the clock for daily-limit windows. Defaults to time.Now.
	Now func() time.Time
}

// Registry creates wallets at deterministic addresses and hands out live
// instances. Each wallet's external effects are wired to the native-balance
// ledger: an executed transfer debits the wallet and credits the
// destination.
type Registry struct {
	db     *storage.Storage
	ledger *ledger.Ledger
	opts   Options

	mu    sync.Mutex
	cache map[wallet.Address]*wallet.Wallet
}

// New creates a registry over the given storage and ledger.
func New(db *storage.Storage, ldg *ledger.Ledger, opts *Options) *Registry {
	r := &Registry{
		db:     db,
		ledger: ldg,
		cache:  make(map[wallet.Address]*wallet.Wallet),
	}

	if opts != nil {
		r.opts = *opts
	}

	return r
}

// Create instantiates a new wallet for creator. The wallet address is
// derived from the creator and the registry's creation sequence, so every
// wallet lands at a unique, reproducible address.
func (r *Registry) Create(creator wallet.Address, owners []wallet.Address, required, dailyLimit uint64) (*wallet.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.sequence()
	addr := deriveAddress(creator, seq)

	w, err := wallet.New(r.db, addr, owners, required, dailyLimit, r.walletOptions(addr))
	if err != nil {
		return nil, err
	}

	var seqBE [8]byte
	binary.BigEndian.PutUint64(seqBE[:], seq)

	var seqLE [8]byte
	binary.LittleEndian.PutUint64(seqLE[:], seq+1)

	err = r.db.SetBatch([]storage.KeyValue{
		{Key: keySequence, Value: seqLE[:]},
		{Key: makeWalletKey(addr), Value: creator[:]},
		{Key: makeCreatorKey(creator, seqBE), Value: addr[:]},
	})
	if err != nil {
		return nil, fmt.Errorf("index wallet: %w", err)
	}

	r.cache[addr] = w

	logger.Info("wallet registered",
		"addr", hex.EncodeToString(addr[:8]),
		"creator", hex.EncodeToString(creator[:8]),
		"seq", seq,
	)

	return w, nil
}

// Open returns the live instance for a wallet address. Instances are cached
// so every caller shares one serialization point per wallet.
func (r *Registry) Open(addr wallet.Address) (*wallet.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.cache[addr]; ok {
		return w, nil
	}

	if !r.db.Has(makeWalletKey(addr)) {
		return nil, fmt.Errorf("%w: %x", wallet.ErrWalletNotFound, addr[:8])
	}

	w, err := wallet.Open(r.db, addr, r.walletOptions(addr))
	if err != nil {
		return nil, err
	}

	r.cache[addr] = w

	return w, nil
}

// IsInstantiation reports whether addr was created by this registry.
func (r *Registry) IsInstantiation(addr wallet.Address) bool {
	return r.db.Has(makeWalletKey(addr))
}

// WalletsByCreator returns the addresses of all wallets created by creator,
// in creation order.
func (r *Registry) WalletsByCreator(creator wallet.Address) []wallet.Address {
	prefix := append([]byte{}, keyCreatorPrefix...)
	prefix = append(prefix, creator[:]...)

	var addrs []wallet.Address

	_ = r.db.IteratePrefix(prefix, func(key, value []byte) error {
		addr, err := wallet.AddressFromBytes(value)
		if err != nil {
			return err
		}
		addrs = append(addrs, addr)

		return nil
	})

	return addrs
}

// InstantiationCount returns how many wallets creator has created.
func (r *Registry) InstantiationCount(creator wallet.Address) uint64 {
	return uint64(len(r.WalletsByCreator(creator)))
}

// Instantiation returns the address of creator's n-th wallet, in creation
// order.
func (r *Registry) Instantiation(creator wallet.Address, n uint64) (wallet.Address, error) {
	wallets := r.WalletsByCreator(creator)
	if n >= uint64(len(wallets)) {
		return wallet.Address{}, fmt.Errorf("no instantiation %d for %x", n, creator[:8])
	}

	return wallets[n], nil
}

// Count returns the number of wallets ever created.
func (r *Registry) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sequence()
}

// sequence reads the next creation sequence number. Caller holds the mutex.
func (r *Registry) sequence() uint64 {
	value, err := r.db.Get(keySequence)
	if err != nil || len(value) != 8 {
		return 0
	}

	return binary.LittleEndian.Uint64(value)
}

// walletOptions wires a wallet instance to the shared ledger and clock.
func (r *Registry) walletOptions(addr wallet.Address) *wallet.Options {
	return &wallet.Options{
		Effector: &transferEffector{ledger: r.ledger, source: ledger.Address(addr)},
		Now:      r.opts.Now,
	}
}

// deriveAddress computes a wallet address from its creator and creation
// sequence: blake3(creator || seq u64 BE).
func deriveAddress(creator wallet.Address, seq uint64) wallet.Address {
	buf := make([]byte, 40)
	copy(buf, creator[:])
	binary.BigEndian.PutUint64(buf[32:], seq)

	return wallet.Address(blake3.Sum256(buf))
}

// transferEffector settles executed transfers against the native ledger.
// Payloads sent to external destinations carry no meaning here; only the
// value moves.
type transferEffector struct {
	ledger *ledger.Ledger
	source ledger.Address
}

func (e *transferEffector) Apply(dest wallet.Address, value uint64, _ []byte) error {
	if value == 0 {
		return nil
	}

	return e.ledger.Transfer(e.source, ledger.Address(dest), value)
}

// makeWalletKey builds the instantiation-marker key for a wallet address.
func makeWalletKey(addr wallet.Address) []byte {
	key := append([]byte{}, keyWalletPrefix...)

	return append(key, addr[:]...)
}

// makeCreatorKey builds the per-creator index key.
func makeCreatorKey(creator wallet.Address, seqBE [8]byte) []byte {
	key := append([]byte{}, keyCreatorPrefix...)
	key = append(key, creator[:]...)

	return append(key, seqBE[:]...)
}
