package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/scrypt"
)

// placeholderPrefix is the frozen wire-format prefix for minted placeholders.
const placeholderPrefix = "MCPROXY_KEY_"

// PlaceholderPattern matches any string in the placeholder format, used both
// to recognize a full-string placeholder and to find embedded occurrences.
var PlaceholderPattern = regexp.MustCompile(placeholderPrefix + `[A-F0-9]{32}`)

// DefaultMaxKeysPerConnection is the default cap on distinct placeholders a
// single connection may own.
const DefaultMaxKeysPerConnection = 100

// DefaultTTL is the default lifetime of a stored secret.
const DefaultTTL = 1 * time.Hour

// sweepInterval is how often the background sweep removes expired records.
const sweepInterval = 60 * time.Second

// scryptN, scryptR, scryptP are the cost parameters for the vault's
// key-derivation function.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// keySalt is a fixed salt for the vault's scrypt key derivation. The spec
// calls for "scrypt(secret, fixed-salt, 32)" — the secret half of the input
// is the unpredictable part (read from the environment or generated
// randomly at process start), so a fixed salt does not weaken the design.
var keySalt = []byte("veilgate-secret-vault-key-salt-v1")

// ErrCapacityExceeded is returned by Store when the owning connection
// already holds MaxKeysPerConnection distinct placeholders.
var ErrCapacityExceeded = errors.New("secret: vault capacity exceeded for connection")

// ErrUnauthorizedAccess is returned (as a logged security event, not a Go
// error to the caller in all cases) when a placeholder is retrieved from a
// connection that does not own it.
var ErrUnauthorizedAccess = errors.New("secret: placeholder not owned by this connection")

// record is one stored secret.
type record struct {
	placeholder  string
	ciphertext   []byte
	nonce        []byte
	connectionID string
	classifier   string
	createdAt    time.Time
	lastAccessed time.Time
}

// VaultConfig parameterizes a Vault.
type VaultConfig struct {
	// EncryptionKey is the 32-byte AEAD key. Derive with DeriveKey before
	// constructing the vault.
	EncryptionKey []byte
	// EncryptionEnabled toggles whether secrets are sealed before storage.
	// When false, plaintext is kept directly (still gated by connection
	// scoping) — used only for configurations that disable vault
	// encryption explicitly.
	EncryptionEnabled bool
	MaxKeysPerConn    int
	TTL               time.Duration
}

// EventSink receives security events the vault emits (unauthorized access,
// capacity exceeded).
type EventSink interface {
	EmitUnauthorizedVaultAccess(connectionID, placeholder string)
}

// Vault is the per-process secret store. Generates opaque placeholders for
// detected credentials, AEAD-encrypts the originals, and scopes every
// record to the connection that minted it.
type Vault struct {
	mu       sync.Mutex
	records  map[string]*record            // placeholder -> record
	byConn   map[string]map[string]bool     // connectionID -> set of placeholders owned
	byFinger map[string]map[uint64]string   // connectionID -> fingerprint -> placeholder
	gcm      cipher.AEAD
	cfg      VaultConfig
	sink     EventSink

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// DeriveKey derives the vault's 256-bit AEAD key from a process secret using
// scrypt with a fixed salt, per spec §4.5.
func DeriveKey(processSecret []byte) ([]byte, error) {
	key, err := scrypt.Key(processSecret, keySalt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("secret: deriving vault key: %w", err)
	}
	return key, nil
}

// NewVault constructs a Vault. If cfg.EncryptionEnabled is true,
// cfg.EncryptionKey must be exactly 32 bytes (see DeriveKey).
func NewVault(cfg VaultConfig, sink EventSink) (*Vault, error) {
	if cfg.MaxKeysPerConn <= 0 {
		cfg.MaxKeysPerConn = DefaultMaxKeysPerConnection
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	v := &Vault{
		records:  make(map[string]*record),
		byConn:   make(map[string]map[string]bool),
		byFinger: make(map[string]map[uint64]string),
		cfg:      cfg,
		sink:     sink,
		stopCh:   make(chan struct{}),
	}

	if cfg.EncryptionEnabled {
		block, err := aes.NewCipher(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("secret: constructing AES cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("secret: constructing GCM: %w", err)
		}
		v.gcm = gcm
	}

	return v, nil
}

// IsPlaceholder reports whether s has the structural shape of a placeholder.
func (v *Vault) IsPlaceholder(s string) bool {
	return len(s) == len(placeholderPrefix)+32 && PlaceholderPattern.MatchString(s) && PlaceholderPattern.FindString(s) == s
}

func fingerprint(secret string) uint64 {
	return xxhash.Sum64String(secret)
}

// Store mints or reuses a placeholder for secret under connectionID. If the
// same secret was already stored under this connection, the existing
// placeholder is returned and last-accessed is refreshed.
func (v *Vault) Store(secret, connectionID, classifier string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	fp := fingerprint(secret)
	if byFp, ok := v.byFinger[connectionID]; ok {
		if ph, ok := byFp[fp]; ok {
			if rec, ok := v.records[ph]; ok {
				rec.lastAccessed = time.Now()
				return ph, nil
			}
		}
	}

	owned := v.byConn[connectionID]
	if len(owned) >= v.cfg.MaxKeysPerConn {
		return "", ErrCapacityExceeded
	}

	placeholder, err := v.mintPlaceholder()
	if err != nil {
		return "", err
	}

	ciphertext, nonce, err := v.seal(secret)
	if err != nil {
		return "", err
	}

	now := time.Now()
	v.records[placeholder] = &record{
		placeholder:  placeholder,
		ciphertext:   ciphertext,
		nonce:        nonce,
		connectionID: connectionID,
		classifier:   classifier,
		createdAt:    now,
		lastAccessed: now,
	}

	if v.byConn[connectionID] == nil {
		v.byConn[connectionID] = make(map[string]bool)
	}
	v.byConn[connectionID][placeholder] = true

	if v.byFinger[connectionID] == nil {
		v.byFinger[connectionID] = make(map[uint64]string)
	}
	v.byFinger[connectionID][fp] = placeholder

	return placeholder, nil
}

// Retrieve returns the original secret for placeholder, scoped to
// connectionID. Returns ("", false) if the placeholder is unknown, owned by
// a different connection, or has expired (lazy expiry also deletes it).
func (v *Vault) Retrieve(placeholder, connectionID string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	rec, ok := v.records[placeholder]
	if !ok {
		return "", false
	}

	if time.Since(rec.createdAt) > v.cfg.TTL {
		v.removeLocked(rec.placeholder)
		return "", false
	}

	if rec.connectionID != connectionID {
		if v.sink != nil {
			v.sink.EmitUnauthorizedVaultAccess(connectionID, placeholder)
		}
		return "", false
	}

	secret, err := v.open(rec)
	if err != nil {
		return "", false
	}

	rec.lastAccessed = time.Now()
	return secret, true
}

// Remove deletes a single placeholder's record.
func (v *Vault) Remove(placeholder string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.removeLocked(placeholder)
}

func (v *Vault) removeLocked(placeholder string) {
	rec, ok := v.records[placeholder]
	if !ok {
		return
	}
	delete(v.records, placeholder)
	if set, ok := v.byConn[rec.connectionID]; ok {
		delete(set, placeholder)
		if len(set) == 0 {
			delete(v.byConn, rec.connectionID)
		}
	}
	for fp, ph := range v.byFinger[rec.connectionID] {
		if ph == placeholder {
			delete(v.byFinger[rec.connectionID], fp)
		}
	}
}

// RemoveAll deletes every record owned by connectionID, used on teardown.
func (v *Vault) RemoveAll(connectionID string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for placeholder := range v.byConn[connectionID] {
		if rec, ok := v.records[placeholder]; ok {
			zero(rec.ciphertext)
			zero(rec.nonce)
		}
		delete(v.records, placeholder)
	}
	delete(v.byConn, connectionID)
	delete(v.byFinger, connectionID)
}

// Size returns the number of placeholders currently stored, for metrics.
func (v *Vault) Size() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.records)
}

func (v *Vault) mintPlaceholder() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("secret: generating placeholder: %w", err)
	}
	hexStr := hex.EncodeToString(buf)
	upper := make([]byte, len(hexStr))
	for i := 0; i < len(hexStr); i++ {
		c := hexStr[i]
		if c >= 'a' && c <= 'f' {
			c = c - 'a' + 'A'
		}
		upper[i] = c
	}
	return placeholderPrefix + string(upper), nil
}

func (v *Vault) seal(plaintext string) (ciphertext, nonce []byte, err error) {
	if !v.cfg.EncryptionEnabled {
		return []byte(plaintext), nil, nil
	}

	nonce = make([]byte, v.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("secret: generating nonce: %w", err)
	}
	ciphertext = v.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return ciphertext, nonce, nil
}

func (v *Vault) open(rec *record) (string, error) {
	if !v.cfg.EncryptionEnabled {
		return string(rec.ciphertext), nil
	}
	plaintext, err := v.gcm.Open(nil, rec.nonce, rec.ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("secret: decrypting record: %w", err)
	}
	return string(plaintext), nil
}

// StartSweep starts the background goroutine that removes records whose TTL
// has elapsed every 60 seconds. Stop with Stop.
func (v *Vault) StartSweep() {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-v.stopCh:
				return
			case <-ticker.C:
				v.sweep()
			}
		}
	}()
}

func (v *Vault) sweep() {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := time.Now()
	for placeholder, rec := range v.records {
		if now.Sub(rec.createdAt) > v.cfg.TTL {
			v.removeLocked(placeholder)
		}
	}
}

// Stop halts the sweep goroutine and zeroizes all stored records. Safe to
// call multiple times.
func (v *Vault) Stop() {
	v.once.Do(func() {
		close(v.stopCh)
	})
	v.wg.Wait()

	v.mu.Lock()
	defer v.mu.Unlock()
	for placeholder, rec := range v.records {
		zero(rec.ciphertext)
		zero(rec.nonce)
		delete(v.records, placeholder)
	}
	v.byConn = make(map[string]map[string]bool)
	v.byFinger = make(map[string]map[uint64]string)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
