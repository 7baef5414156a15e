// Package keg implements the versioned, optionally encrypted and signed
// remote object ("keg") and the collections and synced singletons built on it.
package keg

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/iudanet/kegkeeper/internal/crypto"
	"github.com/iudanet/kegkeeper/internal/errs"
	"github.com/iudanet/kegkeeper/internal/session"
	"github.com/iudanet/kegkeeper/pkg/api"
)

// Reserved payload keys of the anti-tamper block.
const (
	antiTamperKegID = "kegId"
	antiTamperType  = "type"
)

// SignatureState is the outcome of the asynchronous signature check.
type SignatureState int

const (
	// SignatureUnchecked: verification has not finished yet.
	SignatureUnchecked SignatureState = iota
	// SignatureOK: the signature is valid or none was required.
	SignatureOK
	// SignatureError: missing where required, or invalid.
	SignatureError
)

func (s SignatureState) String() string {
	switch s {
	case SignatureOK:
		return "ok"
	case SignatureError:
		return "error"
	default:
		return "unchecked"
	}
}

// Keg is a single versioned remote object.
//
// Version starts at 1 when the keg is created on the server and grows by
// exactly one per successful save. Save and load exclude each other: an
// overlapping call fails with errs.ErrConcurrency instead of waiting.
type Keg struct {
	Content Content
	DB      DB

	sess   *session.Session
	logger *slog.Logger

	// OverrideKey replaces the collection key (used by the boot keg).
	OverrideKey []byte

	ID                string
	Type              string
	Owner             string
	CollectionVersion string
	Version           int
	Format            int

	Plaintext       bool
	ForceSign       bool
	StoreSignerData bool
	AllowEmpty      bool

	PendingReEncryption bool
	Deleted             bool
	Dirty               bool

	// exists: кег есть на сервере (создан или загружен)
	exists bool

	share      *shareInfo
	validated  chan struct{}
	settled    chan struct{}
	sigChecked chan struct{}

	mu             sync.Mutex
	signature      SignatureState
	sharedKegError bool
	saving         bool
	loading        bool
}

// New creates a keg that does not exist on the server yet.
func New(sess *session.Session, db DB, kegType string, content Content) *Keg {
	logger := sess.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Keg{
		Content:    content,
		DB:         db,
		Type:       kegType,
		sess:       sess,
		logger:     logger.With("kegdb_id", db.ID(), "keg_type", kegType),
		settled:    closedChan(),
		sigChecked: closedChan(),
	}
}

// NewNamed creates a keg with a fixed id equal to its type, e.g. "settings".
func NewNamed(sess *session.Session, db DB, name string, content Content) *Keg {
	k := New(sess, db, name, content)
	k.ID = name
	return k
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// SignatureError returns the state of the last signature check.
func (k *Keg) SignatureError() SignatureState {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.signature
}

// SharedKegError reports whether the claimed sender of a shared keg did not
// match the known contact key.
func (k *Keg) SharedKegError() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.sharedKegError
}

// SignatureChecked is closed once the signature check of the last hydration
// has finished.
func (k *Keg) SignatureChecked() <-chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.sigChecked
}

// Created reports whether the keg exists on the server. An AllowEmpty
// placeholder has version 1 but is not created.
func (k *Keg) Created() bool {
	return k.ID != "" && k.exists
}

func (k *Keg) antiTamper() bool {
	return !k.Plaintext || k.ForceSign
}

func (k *Keg) signatureExpected() bool {
	return k.ForceSign || (!k.Plaintext && !k.DB.IsSelf())
}

func (k *Keg) begin(saving bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.saving || k.loading {
		op := "load"
		if saving {
			op = "save"
		}
		return fmt.Errorf("%w: %s of keg %s/%s while another operation runs", errs.ErrConcurrency, op, k.DB.ID(), k.ID)
	}
	if saving {
		k.saving = true
	} else {
		k.loading = true
	}
	return nil
}

func (k *Keg) end() {
	k.mu.Lock()
	k.saving = false
	k.loading = false
	k.mu.Unlock()
}

// SaveToServer creates the keg on first save and submits the next version.
func (k *Keg) SaveToServer(ctx context.Context) error {
	_, err := k.saveToServer(ctx)
	return err
}

// saveToServer is SaveToServer that also reports the version the update
// was based on, after a possible create.
func (k *Keg) saveToServer(ctx context.Context) (base int, err error) {
	if err := k.begin(true); err != nil {
		return k.Version, err
	}
	defer k.end()

	base, err = k.save(ctx)
	return base, errs.Normalize(err)
}

func (k *Keg) save(ctx context.Context) (int, error) {
	if !k.Created() {
		if err := k.create(ctx); err != nil {
			return k.Version, err
		}
	}
	lastVersion := k.Version

	payload, err := k.Content.EncodePayload()
	if err != nil {
		return lastVersion, fmt.Errorf("%w: %w", errs.ErrEncryption, err)
	}
	props, err := k.encodeProps()
	if err != nil {
		return lastVersion, fmt.Errorf("%w: %w", errs.ErrEncryption, err)
	}

	if k.PendingReEncryption {
		if err := k.consumeShare(ctx); err != nil {
			return lastVersion, err
		}
	}

	if k.antiTamper() {
		payload, err = injectAntiTamper(payload, k.ID, k.Type)
		if err != nil {
			return lastVersion, err
		}
	}

	keyID := ""
	if !k.Plaintext {
		var key []byte
		key, keyID, err = k.encryptionKey()
		if err != nil {
			return lastVersion, err
		}
		payload, err = crypto.Encrypt(payload, key)
		if err != nil {
			return lastVersion, err
		}
	}

	req := api.UpdateKegRequest{
		Props:   props,
		KegDbID: k.DB.ID(),
		KegID:   k.ID,
		KeyID:   keyID,
		Type:    k.Type,
		Payload: payload,
		Format:  k.Format,
	}

	if k.signatureExpected() {
		sig, err := k.sign(payload)
		if err != nil {
			return lastVersion, err
		}
		req.Signature = sig
		if k.StoreSignerData {
			req.SignedBy = k.sess.User.Username
		}
	}

	req.Version = lastVersion + 1

	var resp api.UpdateKegResponse
	if err := k.sess.Conn.Send(ctx, api.CmdKegUpdate, req, &resp); err != nil {
		return lastVersion, fmt.Errorf("failed to save keg %s/%s: %w", k.DB.ID(), k.ID, err)
	}

	// версия могла вырасти параллельно (например, после reload)
	k.Version = max(lastVersion+1, k.Version)
	if resp.CollectionVersion != "" {
		k.CollectionVersion = resp.CollectionVersion
	}
	k.Dirty = false

	k.logger.Debug("keg saved", "keg_id", k.ID, "version", k.Version)
	return lastVersion, nil
}

func (k *Keg) create(ctx context.Context) error {
	req := api.CreateKegRequest{
		KegDbID: k.DB.ID(),
		Type:    k.Type,
		KegID:   k.ID,
	}
	var resp api.CreateKegResponse
	if err := k.sess.Conn.Send(ctx, api.CmdKegCreate, req, &resp); err != nil {
		return fmt.Errorf("failed to create keg in %s: %w", k.DB.ID(), err)
	}

	k.ID = resp.KegID
	k.Version = resp.Version
	k.CollectionVersion = resp.CollectionVersion
	k.exists = true
	k.logger.Debug("keg created", "keg_id", k.ID)
	return nil
}

func (k *Keg) encodeProps() (map[string]json.RawMessage, error) {
	codec, ok := k.Content.(PropsCodec)
	if !ok {
		return nil, nil
	}
	return codec.EncodeProps()
}

// encryptionKey returns the key new payloads are encrypted with.
func (k *Keg) encryptionKey() ([]byte, string, error) {
	if k.OverrideKey != nil {
		return k.OverrideKey, "", nil
	}
	keyID := k.DB.CurrentKeyID()
	key, err := k.DB.Key(keyID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", errs.ErrEncryption, err)
	}
	return key, keyID, nil
}

// decryptionKey picks, in order: the shared payload key, the override key,
// the collection key named by the keg.
func (k *Keg) decryptionKey(keyID string) ([]byte, error) {
	if k.share != nil {
		return k.share.payloadKey, nil
	}
	if k.OverrideKey != nil {
		return k.OverrideKey, nil
	}
	key, err := k.DB.Key(keyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrDecryption, err)
	}
	return key, nil
}

func (k *Keg) sign(payload []byte) (string, error) {
	user := k.sess.User
	if user == nil || user.Signing == nil {
		return "", fmt.Errorf("%w: no signing key", errs.ErrEncryption)
	}
	sig, err := crypto.Sign(payload, user.Signing.SecretKey)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrEncryption, err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Load fetches the keg from the server and hydrates it. A missing or empty
// keg with AllowEmpty set becomes an empty placeholder.
func (k *Keg) Load(ctx context.Context) error {
	if k.ID == "" {
		return ErrNoID
	}
	if err := k.begin(false); err != nil {
		return err
	}

	var raw api.Keg
	req := api.GetKegRequest{KegDbID: k.DB.ID(), KegID: k.ID}
	err := k.sess.Conn.Send(ctx, api.CmdKegGet, req, &raw)
	if err != nil {
		defer k.end()
		if k.AllowEmpty && errs.IsServerCode(err, api.CodeNotFound) {
			// ещё не создан: пустая версия 1, сохранение создаст его
			k.Version = 1
			k.CollectionVersion = ""
			k.exists = false
			return nil
		}
		return errs.Normalize(fmt.Errorf("failed to load keg %s/%s: %w", k.DB.ID(), k.ID, err))
	}

	return k.hydrateAndRelease(&raw)
}

// LoadFromKeg hydrates the keg from an already fetched wire keg.
func (k *Keg) LoadFromKeg(raw *api.Keg) error {
	if err := k.begin(false); err != nil {
		return err
	}
	return k.hydrateAndRelease(raw)
}

// hydrateAndRelease ends the load before starting shared-keg validation,
// whose re-encryption save needs the keg to be idle.
func (k *Keg) hydrateAndRelease(raw *api.Keg) error {
	share, err := k.hydrate(raw)
	k.end()
	if err != nil {
		return errs.Normalize(err)
	}
	if share != nil {
		go k.validateShare(share)
	}
	return nil
}

func (k *Keg) hydrate(raw *api.Keg) (_ *shareInfo, err error) {
	if k.ID != "" && raw.KegID != k.ID {
		return nil, fmt.Errorf("%w: expected keg %s, got %s", errs.ErrAntiTamper, k.ID, raw.KegID)
	}
	if k.Type != "" && raw.Type != k.Type {
		return nil, fmt.Errorf("%w: expected type %s, got %s", errs.ErrAntiTamper, k.Type, raw.Type)
	}

	if len(raw.Payload) == 0 {
		if !k.AllowEmpty {
			return nil, fmt.Errorf("keg %s/%s: %w", raw.KegDbID, raw.KegID, ErrEmptyKeg)
		}
		k.applyMeta(raw)
		k.setSignature(SignatureOK, closedChan())
		return nil, nil
	}

	share, err := parseShare(raw.Props)
	if err != nil {
		return nil, err
	}
	if share != nil {
		if err := k.openShare(share); err != nil {
			return nil, err
		}
		defer func() {
			if err != nil {
				k.dropShare()
			}
		}()
	} else {
		k.share = nil
	}

	payload := raw.Payload
	if !k.Plaintext {
		key, err := k.decryptionKey(raw.KeyID)
		if err != nil {
			return nil, err
		}
		payload, err = crypto.Decrypt(raw.Payload, key)
		if err != nil {
			return nil, fmt.Errorf("keg %s/%s: %w", raw.KegDbID, raw.KegID, err)
		}
	}

	if k.antiTamper() {
		payload, err = verifyAntiTamper(payload, raw.KegID, raw.Type)
		if err != nil {
			return nil, err
		}
	}

	if codec, ok := k.Content.(PropsCodec); ok {
		if err := codec.DecodeProps(raw.Props); err != nil {
			return nil, fmt.Errorf("failed to decode props of %s/%s: %w", raw.KegDbID, raw.KegID, err)
		}
	}
	if err := k.Content.DecodePayload(payload); err != nil {
		return nil, err
	}

	k.applyMeta(raw)
	k.checkSignature(raw)
	return share, nil
}

func (k *Keg) applyMeta(raw *api.Keg) {
	k.ID = raw.KegID
	k.Type = raw.Type
	k.Owner = raw.Owner
	k.Version = max(raw.Version, 1)
	k.CollectionVersion = raw.CollectionVersion
	k.Format = raw.Format
	k.Deleted = raw.Deleted
	k.Dirty = false
	k.exists = true
}

func (k *Keg) setSignature(state SignatureState, done chan struct{}) {
	k.mu.Lock()
	k.signature = state
	k.sigChecked = done
	k.mu.Unlock()
}

// checkSignature verifies raw's signature in the background. A missing
// signature where one is expected marks the keg but does not fail the load.
func (k *Keg) checkSignature(raw *api.Keg) {
	if raw.Signature == "" {
		state := SignatureOK
		if k.signatureExpected() {
			state = SignatureError
		}
		k.setSignature(state, closedChan())
		return
	}

	done := make(chan struct{})
	k.setSignature(SignatureUnchecked, done)

	signer := raw.SignedBy
	if signer == "" {
		signer = raw.Owner
	}
	payload := bytes.Clone(raw.Payload)
	sig := raw.Signature

	go func() {
		defer close(done)
		state := k.verifySignature(signer, payload, sig)

		k.mu.Lock()
		defer k.mu.Unlock()
		// результат устаревшей проверки не перетирает более новую гидратацию
		if k.sigChecked != done {
			return
		}
		// sharedKegError уже выставил ошибку подписи
		if k.signature != SignatureError {
			k.signature = state
		}
	}()
}

func (k *Keg) verifySignature(signer string, payload []byte, sig string) SignatureState {
	sigBytes, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		k.logger.Warn("malformed keg signature", "keg_id", k.ID)
		return SignatureError
	}
	contact, err := k.sess.ResolveContact(context.Background(), signer)
	if err != nil {
		k.logger.Warn("cannot resolve keg signer", "keg_id", k.ID, "signer", signer, "error", err)
		return SignatureError
	}
	if !crypto.Verify(payload, sigBytes, contact.SigningPublicKey) {
		k.logger.Warn("invalid keg signature", "keg_id", k.ID, "signer", signer)
		return SignatureError
	}
	return SignatureOK
}

// Remove tombstones the keg on the server. Removing an already removed keg
// succeeds.
func (k *Keg) Remove(ctx context.Context) error {
	if k.ID == "" {
		return ErrNoID
	}
	req := api.DeleteKegRequest{KegDbID: k.DB.ID(), KegID: k.ID}
	if err := k.sess.Conn.Send(ctx, api.CmdKegDelete, req, nil); err != nil {
		if !errs.IsServerCode(err, api.CodeNotFound) {
			return errs.Normalize(fmt.Errorf("failed to remove keg %s/%s: %w", k.DB.ID(), k.ID, err))
		}
	}
	k.Deleted = true
	return nil
}

func injectAntiTamper(payload []byte, kegID, kegType string) ([]byte, error) {
	obj := make(map[string]json.RawMessage)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &obj); err != nil {
			return nil, fmt.Errorf("%w: payload is not a JSON object: %w", errs.ErrEncryption, err)
		}
	}

	var err error
	if obj[antiTamperKegID], err = json.Marshal(kegID); err != nil {
		return nil, err
	}
	if obj[antiTamperType], err = json.Marshal(kegType); err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}

// verifyAntiTamper checks the injected block against the keg metadata and
// returns the payload without it.
func verifyAntiTamper(payload []byte, kegID, kegType string) ([]byte, error) {
	obj := make(map[string]json.RawMessage)
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object", errs.ErrAntiTamper)
	}

	var gotID, gotType string
	if err := json.Unmarshal(obj[antiTamperKegID], &gotID); err != nil || gotID != kegID {
		return nil, fmt.Errorf("%w: payload kegId %q does not match %q", errs.ErrAntiTamper, gotID, kegID)
	}
	if err := json.Unmarshal(obj[antiTamperType], &gotType); err != nil || gotType != kegType {
		return nil, fmt.Errorf("%w: payload type %q does not match %q", errs.ErrAntiTamper, gotType, kegType)
	}

	delete(obj, antiTamperKegID)
	delete(obj, antiTamperType)
	clean, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrAntiTamper, err)
	}
	return clean, nil
}
