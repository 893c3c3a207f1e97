package simplet

import "context"

// =============================================================================
// Deployment Boundary
// =============================================================================

// Stack is a live handle to a deployed simplet.
type Stack interface {
	Kind() Kind
	Stop(ctx context.Context) error
	Cleanup(ctx context.Context) error
}

// Deployer turns a finished configuration into a running Stack.
//
// A failed Deploy may still return a Stack when engine resources were left
// behind; the caller owns its Stop and Cleanup.
type Deployer interface {
	Deploy(ctx context.Context, cfg DeploymentConfig) (Stack, error)
}

// =============================================================================
// Builder
// =============================================================================

// Builder accumulates configuration for one simplet kind. It is a value
// type: every setter returns an updated copy and calling a setter twice
// keeps the last value.
type Builder struct {
	cfg DeploymentConfig
}

// NewBuilder returns an empty builder bound to kind.
func NewBuilder(kind Kind) Builder {
	return Builder{cfg: DeploymentConfig{Kind: kind}}
}

// NewProofOfAttendance returns an empty ProofOfAttendance builder.
func NewProofOfAttendance() Builder {
	return NewBuilder(KindProofOfAttendance)
}

// NewEmailAirdrop returns an empty EmailAirdrop builder.
func NewEmailAirdrop() Builder {
	return NewBuilder(KindEmailAirdrop)
}

// FromOverride replays a (typically merged) override through the setters.
// Apillon credentials are only applied when both key and secret are present.
func FromOverride(kind Kind, o Override) Builder {
	b := NewBuilder(kind)
	if o.AppSecret != nil {
		b = b.AppSecret(*o.AppSecret)
	}
	if o.AppURL != nil {
		b = b.AppURL(*o.AppURL)
	}
	if o.MySQLPassword != nil {
		b = b.MySQLPassword(*o.MySQLPassword)
	}
	if o.MySQLDB != nil {
		b = b.MySQLDB(*o.MySQLDB)
	}
	if o.AdminWallet != nil {
		b = b.AdminWallet(*o.AdminWallet)
	}
	if o.ApillonKey != nil && o.ApillonSecret != nil {
		b = b.ApillonCredentials(*o.ApillonKey, *o.ApillonSecret)
	}
	if o.SMTP != nil {
		b = b.SMTP(*o.SMTP)
	}
	if o.CollectionUUID != nil {
		b = b.CollectionUUID(*o.CollectionUUID)
	}
	return b
}

// AppSecret sets the application signing secret.
func (b Builder) AppSecret(secret string) Builder {
	b.cfg.Common.AppSecret = str(secret)
	return b
}

// AppURL sets the public URL the application is served under.
func (b Builder) AppURL(url string) Builder {
	b.cfg.Common.AppURL = str(url)
	return b
}

// MySQLPassword sets the database root and application password.
func (b Builder) MySQLPassword(password string) Builder {
	b.cfg.Common.MySQLPassword = str(password)
	return b
}

// MySQLDB sets the database name.
func (b Builder) MySQLDB(db string) Builder {
	b.cfg.Common.MySQLDB = str(db)
	return b
}

// AdminWallet sets the administrator wallet address.
func (b Builder) AdminWallet(wallet string) Builder {
	b.cfg.Common.AdminWallet = str(wallet)
	return b
}

// ApillonCredentials sets the paired API key and secret together.
func (b Builder) ApillonCredentials(key, secret string) Builder {
	b.cfg.Common.ApillonKey = str(key)
	b.cfg.Common.ApillonSecret = str(secret)
	return b
}

// SMTP replaces the whole SMTP block.
func (b Builder) SMTP(smtp SmtpConfig) Builder {
	b.cfg.Common.SMTP = &smtp
	return b
}

// CollectionUUID sets the collection identifier. It has no effect on kinds
// without a collection, so their identity is unchanged.
func (b Builder) CollectionUUID(uuid string) Builder {
	if !b.cfg.Kind.HasCollection() {
		return b
	}
	b.cfg.CollectionUUID = str(uuid)
	return b
}

// Kind returns the bound kind.
func (b Builder) Kind() Kind {
	return b.cfg.Kind
}

// Config returns a snapshot of the current configuration.
func (b Builder) Config() DeploymentConfig {
	return DeploymentConfig{
		Kind:           b.cfg.Kind,
		Common:         b.cfg.Common.clone(),
		CollectionUUID: pick(b.cfg.CollectionUUID, nil),
	}
}

// UniqueID derives the identity of the current snapshot. The builder does not
// need to be complete.
func (b Builder) UniqueID() (string, error) {
	return DeriveID(b.cfg)
}

// Env returns the environment overrides of the current snapshot.
func (b Builder) Env() map[string]string {
	return BuildEnv(b.cfg)
}

// Deploy finalizes the configuration and hands it to d.
func (b Builder) Deploy(ctx context.Context, d Deployer) (Stack, error) {
	return d.Deploy(ctx, b.Config())
}
