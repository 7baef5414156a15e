package keg

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/iudanet/kegkeeper/internal/crypto"
	"github.com/iudanet/kegkeeper/internal/errs"
)

// Props that mark a keg received via sharing.
const (
	PropSharedBy          = "sharedBy"
	PropSharedKegSenderPK = "sharedKegSenderPK"
)

type shareInfo struct {
	sharedBy   string
	payloadKey []byte
	senderPK   [crypto.KeySize]byte
}

// parseShare returns nil when the props do not describe a shared keg.
func parseShare(props map[string]json.RawMessage) (*shareInfo, error) {
	rawBy, okBy := props[PropSharedBy]
	rawPK, okPK := props[PropSharedKegSenderPK]
	if !okBy || !okPK {
		return nil, nil
	}

	var by, pk string
	if err := json.Unmarshal(rawBy, &by); err != nil {
		return nil, fmt.Errorf("%w: malformed %s", errs.ErrDecryption, PropSharedBy)
	}
	if err := json.Unmarshal(rawPK, &pk); err != nil {
		return nil, fmt.Errorf("%w: malformed %s", errs.ErrDecryption, PropSharedKegSenderPK)
	}
	pkBytes, err := base64.StdEncoding.DecodeString(pk)
	if err != nil || len(pkBytes) != crypto.KeySize {
		return nil, fmt.Errorf("%w: malformed sender public key", errs.ErrDecryption)
	}

	share := &shareInfo{sharedBy: by}
	copy(share.senderPK[:], pkBytes)
	return share, nil
}

// SharedProps builds the props a sender attaches to a keg shared with
// someone: the recipient decrypts with box(senderPK, recipientSK).
func SharedProps(senderUsername string, senderPK [crypto.KeySize]byte) map[string]json.RawMessage {
	by, _ := json.Marshal(senderUsername)
	pk, _ := json.Marshal(base64.StdEncoding.EncodeToString(senderPK[:]))
	return map[string]json.RawMessage{
		PropSharedBy:          by,
		PropSharedKegSenderPK: pk,
	}
}

func (k *Keg) openShare(share *shareInfo) error {
	user := k.sess.User
	if user == nil {
		return fmt.Errorf("%w: no session user for shared keg", errs.ErrDecryption)
	}
	share.payloadKey = crypto.SharedKey(share.senderPK, user.EncryptionKeys.SecretKey)

	k.mu.Lock()
	k.share = share
	k.sharedKegError = false
	k.validated = make(chan struct{})
	k.settled = make(chan struct{})
	k.mu.Unlock()

	k.PendingReEncryption = true
	return nil
}

// dropShare undoes openShare after a failed hydration.
func (k *Keg) dropShare() {
	k.mu.Lock()
	k.share = nil
	close(k.validated)
	close(k.settled)
	k.validated = nil
	k.mu.Unlock()
	k.PendingReEncryption = false
}

// ShareSettled is closed once the sender of a shared keg has been validated
// and the re-encryption save has been attempted.
func (k *Keg) ShareSettled() <-chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.settled
}

// validateShare checks the claimed sender key against the known contact and,
// on success, re-encrypts the keg under the collection key.
func (k *Keg) validateShare(share *shareInfo) {
	k.mu.Lock()
	validated, settled := k.validated, k.settled
	k.mu.Unlock()
	defer close(settled)

	ctx := context.Background()
	contact, err := k.sess.ResolveContact(ctx, share.sharedBy)
	if err != nil || contact.EncryptionPublicKey != share.senderPK {
		k.mu.Lock()
		k.sharedKegError = true
		k.signature = SignatureError
		k.mu.Unlock()
		close(validated)

		k.logger.Warn("shared keg sender does not match contact key", "keg_id", k.ID, "shared_by", share.sharedBy, "error", err)
		return
	}
	close(validated)

	if err := k.SaveToServer(ctx); err != nil {
		k.logger.Warn("failed to re-encrypt shared keg", "keg_id", k.ID, "error", err)
	}
}

// consumeShare waits for validation and drops the sharing state so the next
// save encrypts with the collection key.
func (k *Keg) consumeShare(ctx context.Context) error {
	k.mu.Lock()
	validated := k.validated
	k.mu.Unlock()

	if validated != nil {
		select {
		case <-validated:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if k.SharedKegError() {
		return fmt.Errorf("%w: shared keg sender validation failed", errs.ErrAntiTamper)
	}

	k.mu.Lock()
	k.share = nil
	k.mu.Unlock()
	k.PendingReEncryption = false
	return nil
}
