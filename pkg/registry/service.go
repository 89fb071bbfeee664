package registry

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/burrowlabs/burrow/pkg/logger"
)

// Service implements the workspace lifecycle over a Store. All token
// plaintext handling lives here: records leave Get with the token already
// decrypted, and every write path seals it first, so handler code can never
// accidentally log or store the wrong form.
type Service struct {
	store  Store
	cipher *TokenCipher
}

func NewService(store Store, cipher *TokenCipher) *Service {
	return &Service{store: store, cipher: cipher}
}

// HashAuthCode is the stored form of a one-time registration code.
func HashAuthCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Get returns the record with the bot token decrypted, or nil if absent.
func (s *Service) Get(ctx context.Context, workspaceID string) (*Record, error) {
	rec, err := s.store.Get(ctx, workspaceID)
	if err != nil || rec == nil {
		return rec, err
	}
	token, err := s.cipher.Open(rec.BotToken)
	if err != nil {
		return nil, fmt.Errorf("workspace %s: %w", workspaceID, err)
	}
	rec.BotToken = token
	return rec, nil
}

// CreatePending records a completed OAuth install. It always overwrites any
// prior record for the workspace: a reinstall supersedes whatever state the
// old install left behind, including an active registration.
func (s *Service) CreatePending(ctx context.Context, workspaceID, teamName, botToken, authCodeHash string) error {
	sealed, err := s.cipher.Seal(botToken)
	if err != nil {
		return fmt.Errorf("seal bot token: %w", err)
	}
	rec := &Record{
		WorkspaceID:  workspaceID,
		TeamName:     teamName,
		Status:       StatusPending,
		BotToken:     sealed,
		AuthCodeHash: authCodeHash,
	}

	for {
		existing, err := s.store.Get(ctx, workspaceID)
		if err != nil {
			return err
		}
		var version int64
		if existing != nil {
			version = existing.Version
		}
		err = s.store.Put(ctx, rec, version)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		return err
	}
}

// Activate flips a pending workspace to active with the server's callback
// URL and public keys. It returns nil (no record, no error) when the
// workspace does not exist or is already active: exactly one activation
// wins, and re-keying requires an explicit Deactivate first. A lost CAS race
// is reported the same way as an already-active record.
func (s *Service) Activate(ctx context.Context, workspaceID, serverURL, pubKey, signingKey string) (*Record, error) {
	rec, err := s.store.Get(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Status == StatusActive {
		return nil, nil
	}

	updated := *rec
	updated.Status = StatusActive
	updated.ServerURL = serverURL
	updated.ServerPubKey = pubKey
	updated.ServerSigningKey = signingKey
	updated.AuthCodeHash = ""

	if err := s.store.Put(ctx, &updated, rec.Version); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			logger.WarnCF("registry", "activation lost a write race", map[string]interface{}{
				"workspace_id": workspaceID,
			})
			return nil, nil
		}
		return nil, err
	}
	return &updated, nil
}

// CheckAuthCode compares a presented code against the stored hash in
// constant time.
func CheckAuthCode(rec *Record, code string) bool {
	if rec == nil || rec.AuthCodeHash == "" {
		return false
	}
	presented := HashAuthCode(code)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(rec.AuthCodeHash)) == 1
}

// Deactivate unlinks a workspace: keys and callback URL are cleared, the
// record stays for audit history. Returns false when no record exists.
func (s *Service) Deactivate(ctx context.Context, workspaceID string) (bool, error) {
	for {
		rec, err := s.store.Get(ctx, workspaceID)
		if err != nil {
			return false, err
		}
		if rec == nil {
			return false, nil
		}

		updated := *rec
		updated.Status = StatusInactive
		updated.ServerURL = ""
		updated.ServerPubKey = ""
		updated.ServerSigningKey = ""

		err = s.store.Put(ctx, &updated, rec.Version)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
}
