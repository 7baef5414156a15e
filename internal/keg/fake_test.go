package keg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/kegkeeper/internal/crypto"
	"github.com/iudanet/kegkeeper/internal/errs"
	"github.com/iudanet/kegkeeper/internal/session"
	"github.com/iudanet/kegkeeper/pkg/api"
)

// fakeServer is an in-memory keg server speaking the command protocol.
type fakeServer struct {
	*session.AuthState

	kegs map[string]map[string]*api.Keg
	// fail returns an error to inject for a command, or nil.
	fail func(command string, payload any) error
	// updateGate, if set, blocks every update until it yields.
	updateGate chan struct{}

	calls       map[string]int
	updates     []api.UpdateKegRequest
	owner       string
	seq         int
	nextID      int
	inFlight    int
	maxInFlight int
	mu          sync.Mutex
}

func newFakeServer(owner string) *fakeServer {
	srv := &fakeServer{
		AuthState: session.NewAuthState(),
		kegs:      make(map[string]map[string]*api.Keg),
		calls:     make(map[string]int),
		owner:     owner,
	}
	srv.SetAuthenticated()
	return srv
}

func (f *fakeServer) nextVersion() string {
	f.seq++
	return strconv.Itoa(f.seq)
}

func (f *fakeServer) Send(ctx context.Context, command string, payload, resp any) error {
	f.mu.Lock()
	f.calls[command]++
	fail := f.fail
	f.mu.Unlock()

	if fail != nil {
		if err := fail(command, payload); err != nil {
			return err
		}
	}

	if command == api.CmdKegUpdate {
		f.mu.Lock()
		f.inFlight++
		f.maxInFlight = max(f.maxInFlight, f.inFlight)
		gate := f.updateGate
		f.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		defer func() {
			f.mu.Lock()
			f.inFlight--
			f.mu.Unlock()
		}()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out, err := f.handle(command, payload)
	if err != nil {
		return err
	}
	if resp == nil || out == nil {
		return nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, resp)
}

func (f *fakeServer) handle(command string, payload any) (any, error) {
	switch command {
	case api.CmdKegCreate:
		req := payload.(api.CreateKegRequest)
		id := req.KegID
		if id == "" {
			f.nextID++
			id = fmt.Sprintf("keg%d", f.nextID)
		}
		if f.kegs[req.KegDbID] == nil {
			f.kegs[req.KegDbID] = make(map[string]*api.Keg)
		}
		if _, ok := f.kegs[req.KegDbID][id]; ok {
			return nil, errs.NewServerError(api.CodeVersionConflict, "exists")
		}
		k := &api.Keg{KegID: id, KegDbID: req.KegDbID, Type: req.Type, Owner: f.owner, Version: 1, CollectionVersion: f.nextVersion()}
		f.kegs[req.KegDbID][id] = k
		return api.CreateKegResponse{KegID: id, Version: 1, CollectionVersion: k.CollectionVersion}, nil

	case api.CmdKegUpdate:
		req := payload.(api.UpdateKegRequest)
		k, ok := f.kegs[req.KegDbID][req.KegID]
		if !ok {
			return nil, errs.NewServerError(api.CodeNotFound, "no keg")
		}
		if req.Version != k.Version+1 {
			return nil, errs.NewServerError(api.CodeVersionConflict, "version")
		}
		f.updates = append(f.updates, req)
		k.Payload = req.Payload
		k.Props = req.Props
		k.KeyID = req.KeyID
		k.Signature = req.Signature
		k.SignedBy = req.SignedBy
		k.Format = req.Format
		k.Version = req.Version
		k.CollectionVersion = f.nextVersion()
		return api.UpdateKegResponse{Version: k.Version, CollectionVersion: k.CollectionVersion}, nil

	case api.CmdKegGet:
		req := payload.(api.GetKegRequest)
		k, ok := f.kegs[req.KegDbID][req.KegID]
		if !ok {
			return nil, errs.NewServerError(api.CodeNotFound, "no keg")
		}
		return *k, nil

	case api.CmdKegDelete:
		req := payload.(api.DeleteKegRequest)
		k, ok := f.kegs[req.KegDbID][req.KegID]
		if !ok || k.Deleted {
			return nil, errs.NewServerError(api.CodeNotFound, "no keg")
		}
		k.Deleted = true
		k.CollectionVersion = f.nextVersion()
		return api.OKResponse{OK: true}, nil

	case api.CmdKegList:
		req := payload.(api.ListKegsRequest)
		var out api.ListKegsResponse
		for _, k := range f.kegs[req.KegDbID] {
			if k.Type == req.Type {
				out.Kegs = append(out.Kegs, *k)
			}
		}
		return out, nil

	case api.CmdLastKnownVersion, api.CmdDigest:
		return api.OKResponse{OK: true}, nil
	}
	return nil, errs.NewServerError(api.CodeMalformedRequest, "unknown command "+command)
}

// raw returns a copy of a stored keg.
func (f *fakeServer) raw(db, id string) api.Keg {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.kegs[db][id]
	if k == nil {
		return api.Keg{}
	}
	cp := *k
	cp.Payload = append([]byte(nil), k.Payload...)
	return cp
}

// put stores a keg as-is.
func (f *fakeServer) put(k api.Keg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kegs[k.KegDbID] == nil {
		f.kegs[k.KegDbID] = make(map[string]*api.Keg)
	}
	f.kegs[k.KegDbID][k.KegID] = &k
}

func (f *fakeServer) count(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[command]
}

var _ session.Connection = (*fakeServer)(nil)

func newTestUser(t *testing.T, username string) *session.User {
	t.Helper()
	signing, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	box, err := crypto.GenerateBoxKeyPair()
	require.NoError(t, err)
	return &session.User{Username: username, Signing: signing, EncryptionKeys: box}
}

func newTestSession(t *testing.T, conn session.Connection, user *session.User, contacts ...*session.Contact) *session.Session {
	t.Helper()
	return session.New(conn, user, session.NewStaticContacts(contacts...), nil)
}

func newRoomDB(t *testing.T, id string) *StaticDB {
	t.Helper()
	key, err := crypto.NewKey()
	require.NoError(t, err)
	return NewStaticDB(id, false, "k1", key)
}

func jsonContent(t *testing.T, kv map[string]any) *JSONContent {
	t.Helper()
	data := make(map[string]json.RawMessage, len(kv))
	for k, v := range kv {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		data[k] = raw
	}
	return &JSONContent{Data: data}
}
