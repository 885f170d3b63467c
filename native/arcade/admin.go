package arcade

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AdminConfig holds the privileged identities together with an audit of the
// last change.
type AdminConfig struct {
	Operator      common.Address
	BackendSigner common.Address
	UpdatedBy     common.Address
	UpdatedAt     time.Time
}

type storedAdminConfig struct {
	Operator      common.Address
	BackendSigner common.Address
	UpdatedBy     common.Address
	UpdatedAt     uint64
}

// Admin guards the privileged configuration record.
type Admin struct {
	store Store
	now   func() time.Time
}

// NewAdmin binds the admin record to state.
func NewAdmin(store Store, now func() time.Time) *Admin {
	if now == nil {
		now = time.Now
	}
	return &Admin{store: store, now: now}
}

// Config loads the current record. A missing record yields the zero value.
func (a *Admin) Config() (AdminConfig, error) {
	var stored storedAdminConfig
	if _, err := a.store.KVGet(adminConfigKey, &stored); err != nil {
		return AdminConfig{}, err
	}
	return AdminConfig{
		Operator:      stored.Operator,
		BackendSigner: stored.BackendSigner,
		UpdatedBy:     stored.UpdatedBy,
		UpdatedAt:     fromUnixSeconds(stored.UpdatedAt),
	}, nil
}

func (a *Admin) put(cfg AdminConfig) error {
	return a.store.KVPut(adminConfigKey, storedAdminConfig{
		Operator:      cfg.Operator,
		BackendSigner: cfg.BackendSigner,
		UpdatedBy:     cfg.UpdatedBy,
		UpdatedAt:     unixSeconds(cfg.UpdatedAt),
	})
}

// Bootstrap installs the initial operator and signer. It is a no-op once an
// operator exists, so restarting with the genesis config cannot override a
// handover performed at runtime.
func (a *Admin) Bootstrap(operator, signer common.Address) (AdminConfig, bool, error) {
	cfg, err := a.Config()
	if err != nil {
		return cfg, false, err
	}
	if cfg.Operator != (common.Address{}) {
		return cfg, false, nil
	}
	if operator == (common.Address{}) {
		return cfg, false, fmt.Errorf("arcade: operator required")
	}
	cfg = AdminConfig{Operator: operator, BackendSigner: signer, UpdatedBy: operator, UpdatedAt: a.now()}
	if err := a.put(cfg); err != nil {
		return cfg, false, err
	}
	return cfg, true, nil
}

// RequireOperator fails with ErrUnauthorized unless caller is the operator.
func (a *Admin) RequireOperator(caller common.Address) error {
	cfg, err := a.Config()
	if err != nil {
		return err
	}
	if cfg.Operator == (common.Address{}) || cfg.Operator != caller {
		return ErrUnauthorized
	}
	return nil
}

// SetBackendSigner replaces the backend signer.
func (a *Admin) SetBackendSigner(caller, signer common.Address) (AdminConfig, error) {
	if err := a.RequireOperator(caller); err != nil {
		return AdminConfig{}, err
	}
	if signer == (common.Address{}) {
		return AdminConfig{}, fmt.Errorf("arcade: backend signer must not be the zero address")
	}
	cfg, err := a.Config()
	if err != nil {
		return cfg, err
	}
	cfg.BackendSigner = signer
	cfg.UpdatedBy = caller
	cfg.UpdatedAt = a.now()
	return cfg, a.put(cfg)
}

// TransferOperator hands the operator role to next.
func (a *Admin) TransferOperator(caller, next common.Address) (AdminConfig, error) {
	if err := a.RequireOperator(caller); err != nil {
		return AdminConfig{}, err
	}
	if next == (common.Address{}) {
		return AdminConfig{}, fmt.Errorf("arcade: operator must not be the zero address")
	}
	cfg, err := a.Config()
	if err != nil {
		return cfg, err
	}
	cfg.Operator = next
	cfg.UpdatedBy = caller
	cfg.UpdatedAt = a.now()
	return cfg, a.put(cfg)
}

// BackendSigner implements SignerSource.
func (a *Admin) BackendSigner() (common.Address, error) {
	cfg, err := a.Config()
	if err != nil {
		return common.Address{}, err
	}
	if cfg.BackendSigner == (common.Address{}) {
		return common.Address{}, ErrSignerNotConfigured
	}
	return cfg.BackendSigner, nil
}
