package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"

	"gavault/internal/kv"
	"gavault/pkg/logging"
)

// DefaultStateExpiry is how long a connect flow may take.
const DefaultStateExpiry = 10 * time.Minute

// ErrInvalidState is returned for unknown, expired or reused state values.
var ErrInvalidState = errors.New("invalid or expired state")

// StateStore keeps pending connect flows in the key-value store so that the
// callback may land on any instance. States are single use.
type StateStore struct {
	store  kv.Store
	taker  kv.Taker
	keys   kv.Keys
	clock  quartz.Clock
	expiry time.Duration
}

// NewStateStore creates a StateStore with DefaultStateExpiry.
func NewStateStore(store kv.Store, keys kv.Keys, clock quartz.Clock) *StateStore {
	if clock == nil {
		clock = quartz.NewReal()
	}
	ss := &StateStore{
		store:  store,
		keys:   keys,
		clock:  clock,
		expiry: DefaultStateExpiry,
	}
	if taker, ok := store.(kv.Taker); ok {
		ss.taker = taker
	}
	return ss
}

// Generate stores st and returns the opaque state parameter for the
// authorization URL.
func (ss *StateStore) Generate(ctx context.Context, st State) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(nonce)

	st.CreatedAt = ss.clock.Now()
	data, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("failed to encode state: %w", err)
	}

	if err := ss.store.Set(ctx, ss.keys.OAuthState(state), string(data), ss.expiry); err != nil {
		return "", fmt.Errorf("failed to store state: %w", err)
	}

	logging.Debug("OAuth", "Generated state for %s flow", st.Flow)
	return state, nil
}

// Consume returns and deletes the flow behind state.
func (ss *StateStore) Consume(ctx context.Context, state string) (*State, error) {
	if state == "" {
		return nil, ErrInvalidState
	}

	key := ss.keys.OAuthState(state)
	var data string
	var err error
	if ss.taker != nil {
		data, err = ss.taker.GetDel(ctx, key)
	} else {
		data, err = ss.store.Get(ctx, key)
		if err == nil {
			err = ss.store.Delete(ctx, key)
		}
	}
	if errors.Is(err, kv.ErrNotFound) {
		logging.Warn("OAuth", "State not found or already used")
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	var st State
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		logging.Warn("OAuth", "Failed to decode stored state: %v", err)
		return nil, ErrInvalidState
	}

	if age := ss.clock.Now().Sub(st.CreatedAt); age > ss.expiry {
		logging.Warn("OAuth", "State expired: age=%v", age)
		return nil, ErrInvalidState
	}
	return &st, nil
}
