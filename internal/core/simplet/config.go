package simplet

// =============================================================================
// Configuration Types
// =============================================================================

// SmtpConfig holds outgoing mail settings. It is always supplied as a
// complete unit; there are no field-level overrides within SMTP.
type SmtpConfig struct {
	Host      string `json:"host" mapstructure:"host"`
	Port      string `json:"port" mapstructure:"port"`
	Username  string `json:"username" mapstructure:"username"`
	Password  string `json:"password" mapstructure:"password"`
	EmailFrom string `json:"email_from" mapstructure:"email_from"`
	NameFrom  string `json:"name_from" mapstructure:"name_from"`
}

// CommonConfig holds the deployment parameters shared by every kind.
// A nil field means "use the default when the environment is wired",
// not "invalid".
//
// Field order is significant: it is the serialization order used for
// identity derivation.
type CommonConfig struct {
	AppSecret     *string     `json:"app_secret" mapstructure:"app_secret"`
	AppURL        *string     `json:"app_url" mapstructure:"app_url"`
	MySQLPassword *string     `json:"mysql_password" mapstructure:"mysql_password"`
	MySQLDB       *string     `json:"mysql_db" mapstructure:"mysql_db"`
	AdminWallet   *string     `json:"admin_wallet" mapstructure:"admin_wallet"`
	ApillonKey    *string     `json:"apillon_key" mapstructure:"apillon_key"`
	ApillonSecret *string     `json:"apillon_secret" mapstructure:"apillon_secret"`
	SMTP          *SmtpConfig `json:"smtp_config" mapstructure:"smtp_config"`
}

// Override is the caller-facing configuration shape: the common fields plus
// the extras any kind may accept. Job payloads and per-service defaults both
// decode into it.
type Override struct {
	CommonConfig   `mapstructure:",squash"`
	CollectionUUID *string `json:"collection_uuid,omitempty" mapstructure:"collection_uuid"`
}

// DeploymentConfig is a finished configuration bound to a kind.
type DeploymentConfig struct {
	Kind   Kind
	Common CommonConfig

	// CollectionUUID is only meaningful for kinds where HasCollection is true.
	CollectionUUID *string
}

// =============================================================================
// Merge
// =============================================================================

// Merge combines a base configuration with caller overrides. Each field set
// in override takes precedence; fields absent from override fall back to
// base. SMTP is replaced as a whole.
func Merge(base, override Override) Override {
	return Override{
		CommonConfig: CommonConfig{
			AppSecret:     pick(override.AppSecret, base.AppSecret),
			AppURL:        pick(override.AppURL, base.AppURL),
			MySQLPassword: pick(override.MySQLPassword, base.MySQLPassword),
			MySQLDB:       pick(override.MySQLDB, base.MySQLDB),
			AdminWallet:   pick(override.AdminWallet, base.AdminWallet),
			ApillonKey:    pick(override.ApillonKey, base.ApillonKey),
			ApillonSecret: pick(override.ApillonSecret, base.ApillonSecret),
			SMTP:          pickSMTP(override.SMTP, base.SMTP),
		},
		CollectionUUID: pick(override.CollectionUUID, base.CollectionUUID),
	}
}

func pick(override, base *string) *string {
	if override != nil {
		return str(*override)
	}
	if base != nil {
		return str(*base)
	}
	return nil
}

func pickSMTP(override, base *SmtpConfig) *SmtpConfig {
	if override != nil {
		c := *override
		return &c
	}
	if base != nil {
		c := *base
		return &c
	}
	return nil
}

// clone returns a deep copy so snapshots never alias builder state.
func (c CommonConfig) clone() CommonConfig {
	out := CommonConfig{
		AppSecret:     pick(c.AppSecret, nil),
		AppURL:        pick(c.AppURL, nil),
		MySQLPassword: pick(c.MySQLPassword, nil),
		MySQLDB:       pick(c.MySQLDB, nil),
		AdminWallet:   pick(c.AdminWallet, nil),
		ApillonKey:    pick(c.ApillonKey, nil),
		ApillonSecret: pick(c.ApillonSecret, nil),
		SMTP:          pickSMTP(c.SMTP, nil),
	}
	return out
}

func str(s string) *string {
	return &s
}
